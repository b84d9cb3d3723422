package main

import (
	"context"
	"testing"

	"github.com/spf13/viper"
)

func TestArchivePayout_noDatabaseConfiguredIsNoOp(t *testing.T) {
	viper.Set("database_url", "")
	archivePayout(context.Background(), "0xabc")
}

func TestArchivePayout_badDatabaseURLDoesNotFailPayout(t *testing.T) {
	viper.Set("database_url", "postgres://aegis@localhost:notaport/aegis")
	defer viper.Set("database_url", "")

	// The payout itself already confirmed; archiving problems must only warn.
	archivePayout(context.Background(), "0xabc")
}
