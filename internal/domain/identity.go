package domain

// Customer is the paying account holder. Athletes are the people a customer
// books sessions for; a parent buying for two kids is one customer with two
// athletes.
type Customer struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
}

type Athlete struct {
	ID         int64
	CustomerID int64
	FirstName  string
	LastName   string
}

type Coach struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
}
