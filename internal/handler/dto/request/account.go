package request

type CreditRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Ref    string `json:"ref" binding:"required"`
}
