package model

// Contributor is a family member allowed to record transactions.
type Contributor struct {
	ID   int64  `yaml:"id" json:"id"`
	Role string `yaml:"role" json:"role"`
}
