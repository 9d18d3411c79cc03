package models

import (
	"github.com/polizalink/backend/internal/domain/contact"
)

// ContactModel is the persistence model for the contact directory
type ContactModel struct {
	BaseModel
	DisplayName string `gorm:"type:varchar(200);not null"`
	Email       string `gorm:"type:varchar(255);index"`
	Status      string `gorm:"type:varchar(20);not null;default:'prospect';index"`
}

// TableName returns the table name for GORM
func (ContactModel) TableName() string {
	return "contacts"
}

// ToDomain converts the persistence model to a domain Contact
func (m *ContactModel) ToDomain() contact.Contact {
	return contact.Contact{
		BaseEntity:  m.BaseModel.ToDomain(),
		DisplayName: m.DisplayName,
		Email:       m.Email,
		Status:      contact.ContactStatus(m.Status),
	}
}

// FromDomain populates the persistence model from a domain Contact
func (m *ContactModel) FromDomain(c *contact.Contact) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.DisplayName = c.DisplayName
	m.Email = c.Email
	m.Status = string(c.Status)
}

// ContactModelFromDomain creates a new persistence model from a domain Contact
func ContactModelFromDomain(c *contact.Contact) *ContactModel {
	m := &ContactModel{}
	m.FromDomain(c)
	return m
}
