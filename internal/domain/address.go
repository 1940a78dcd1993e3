package domain

import "time"

type Address struct {
	ID         int64
	UserID     int64
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	CreatedAt  time.Time
}
