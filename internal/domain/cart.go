package domain

import "time"

// ItemConfig is the product snapshot captured when an item enters the
// cart. It is a copy, not a reference: catalog edits after add-time do
// not change what the customer already put in the cart.
type ItemConfig struct {
	UnitPrice     int64             `bson:"unit_price" json:"unitPrice"`
	Name          string            `bson:"name" json:"name"`
	BakeryName    string            `bson:"bakery_name" json:"bakeryName"`
	Description   string            `bson:"description,omitempty" json:"description,omitempty"`
	Type          string            `bson:"type,omitempty" json:"type,omitempty"`
	Customization map[string]string `bson:"customization,omitempty" json:"customization,omitempty"`
}

type CartItem struct {
	ID       string     `bson:"item_id" json:"itemId"`
	BakeryID string     `bson:"bakery_id" json:"bakeryId"`
	Quantity int        `bson:"quantity" json:"quantity"`
	Price    int64      `bson:"price" json:"price"`
	Config   ItemConfig `bson:"config" json:"config"`
	AddedAt  time.Time  `bson:"added_at" json:"addedAt"`
}

// Cart holds one user's cart. All items share CurrentBakeryID; an empty
// cart has CurrentBakeryID == "".
type Cart struct {
	ID              string     `bson:"_id,omitempty" json:"-"`
	UserID          string     `bson:"user_id" json:"userId"`
	Items           []CartItem `bson:"items" json:"items"`
	CurrentBakeryID string     `bson:"current_bakery_id" json:"currentBakeryId"`
	CreatedAt       time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `bson:"updated_at" json:"updatedAt"`
}
