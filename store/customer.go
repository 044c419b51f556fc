package store

// Customer is a registered shopper. Username links it to the storefront identity.
type Customer struct {
	CustomerID      string
	Version         string
	Name            string
	Surname         string
	Username        string
	Email           string
	ShippingAddress string
}

type customerRecord struct {
	Name            string `dynamodbav:"name"`
	Surname         string `dynamodbav:"surname"`
	Username        string `dynamodbav:"username"`
	Email           string `dynamodbav:"email"`
	ShippingAddress string `dynamodbav:"shipping_address"`
}

// AttrUsername is the attribute customers are resolved by at checkout.
const AttrUsername = "username"

func (c Customer) Kind() Kind { return KindCustomer }
func (c Customer) ID() string { return c.CustomerID }

func (c Customer) ToRow() (*Row, error) {
	return encodeRow(KindCustomer, c.CustomerID, c.Version, customerRecord{
		Name:            c.Name,
		Surname:         c.Surname,
		Username:        c.Username,
		Email:           c.Email,
		ShippingAddress: c.ShippingAddress,
	})
}

func (c *Customer) FromRow(row *Row) error {
	var rec customerRecord
	if err := decodeRow(KindCustomer, row, &rec); err != nil {
		return err
	}
	*c = Customer{
		CustomerID:      row.Key,
		Version:         row.Version,
		Name:            rec.Name,
		Surname:         rec.Surname,
		Username:        rec.Username,
		Email:           rec.Email,
		ShippingAddress: rec.ShippingAddress,
	}
	return nil
}
