package policy

import (
	"fmt"
	"regexp"
)

// TableMapping describes how the columns of one product table map onto
// Record. Tables do not share a schema, so this is configuration data.
type TableMapping struct {
	Table          string `mapstructure:"table" validate:"required,sqlident"`
	NameColumn     string `mapstructure:"name_column" validate:"required,sqlident"`
	EmailColumn    string `mapstructure:"email_column" validate:"omitempty,sqlident"`
	NumberColumn   string `mapstructure:"number_column" validate:"required,sqlident"`
	LineOfBusiness string `mapstructure:"line_of_business" validate:"required"`
	PremiumColumn  string `mapstructure:"premium_column" validate:"omitempty,sqlident"`
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// IsIdentifier reports whether s is safe to splice into SQL as a table or
// column name.
func IsIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// Validate checks that every identifier in the mapping is usable in SQL
func (m TableMapping) Validate() error {
	for _, id := range []string{m.Table, m.NameColumn, m.NumberColumn} {
		if !IsIdentifier(id) {
			return fmt.Errorf("invalid identifier %q in mapping for table %q", id, m.Table)
		}
	}
	for _, id := range []string{m.EmailColumn, m.PremiumColumn} {
		if id != "" && !IsIdentifier(id) {
			return fmt.Errorf("invalid identifier %q in mapping for table %q", id, m.Table)
		}
	}
	return nil
}

// DefaultTables returns the mappings of the nine product tables
func DefaultTables() []TableMapping {
	return []TableMapping{
		{Table: "autos", NameColumn: "contratante", EmailColumn: "email", NumberColumn: "numero_poliza", LineOfBusiness: "autos", PremiumColumn: "prima_total"},
		{Table: "vida", NameColumn: "contratante", EmailColumn: "correo", NumberColumn: "numero_poliza", LineOfBusiness: "vida", PremiumColumn: "prima_total"},
		{Table: "gmm", NameColumn: "nombre_contratante", EmailColumn: "email", NumberColumn: "numero_poliza", LineOfBusiness: "gastos_medicos", PremiumColumn: "prima_total"},
		{Table: "hogar", NameColumn: "asegurado", EmailColumn: "email", NumberColumn: "numero_poliza", LineOfBusiness: "hogar", PremiumColumn: "prima_total"},
		{Table: "mascotas", NameColumn: "propietario", EmailColumn: "email", NumberColumn: "numero_poliza", LineOfBusiness: "mascotas", PremiumColumn: "prima_total"},
		{Table: "negocio", NameColumn: "razon_social", EmailColumn: "email_contacto", NumberColumn: "numero_poliza", LineOfBusiness: "negocio", PremiumColumn: "prima_total"},
		{Table: "diversos", NameColumn: "contratante", EmailColumn: "email", NumberColumn: "numero_poliza", LineOfBusiness: "diversos", PremiumColumn: "prima_total"},
		{Table: "rc", NameColumn: "contratante", EmailColumn: "email", NumberColumn: "numero_poliza", LineOfBusiness: "responsabilidad_civil", PremiumColumn: "prima_total"},
		{Table: "transporte", NameColumn: "contratante", EmailColumn: "correo", NumberColumn: "numero_poliza", LineOfBusiness: "transporte", PremiumColumn: "prima_total"},
	}
}

// TableNames returns the table names of mappings in order
func TableNames(mappings []TableMapping) []string {
	names := make([]string, len(mappings))
	for i, m := range mappings {
		names[i] = m.Table
	}
	return names
}

// FindTable looks up a mapping by table name
func FindTable(mappings []TableMapping, table string) (TableMapping, bool) {
	for _, m := range mappings {
		if m.Table == table {
			return m, true
		}
	}
	return TableMapping{}, false
}
