// Package models contains the GORM models of the catalog database.
// They are kept apart from the domain types so the domain stays free of ORM tags;
// each model converts to and from its domain counterpart.
package models
