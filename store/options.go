package store

// ListOption narrows a List call.
type ListOption func(*listOptions)

type listOptions struct {
	equals []equality
}

type equality struct {
	attr  string
	value string
}

// WhereEquals keeps only rows whose string attribute attr equals value.
// Filters are applied server-side after the partition is read.
func WhereEquals(attr, value string) ListOption {
	return func(o *listOptions) {
		o.equals = append(o.equals, equality{attr: attr, value: value})
	}
}

func buildListOptions(opts []ListOption) listOptions {
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
