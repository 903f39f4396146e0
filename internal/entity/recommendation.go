package entity

// ProductScore is one product's weight within a single recommendation signal.
type ProductScore struct {
	ProductID int64
	Score     float64
}
