// Package db embeds the SQL schema of the scheduling store.
package db

import (
	_ "embed"

	"github.com/noah-isme/driving-school-api/pkg/database"
)

//go:embed schema.sql
var schema string

// Migrations lists the schema steps in version order.
func Migrations() []database.Migration {
	return []database.Migration{
		{Version: "0001", Description: "scheduling core", SQL: schema},
	}
}
