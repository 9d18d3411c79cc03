// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain entities so the domain layer stays free of
// ORM tags. Repositories convert between the two with ToDomain/FromDomain.
//
// Product tables (autos, vida, gmm, ...) have no model here: their column
// names vary per table and are read through policy.TableMapping instead.
package models
