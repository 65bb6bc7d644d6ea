package sqlserver

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
)

func mustIdentifier(t *testing.T, name string) Identifier {
	t.Helper()
	id, err := NewIdentifier(name)
	if err != nil {
		t.Fatalf("NewIdentifier(%q): %v", name, err)
	}
	return id
}

func TestPhysicalFileName(t *testing.T) {
	db := mustIdentifier(t, "AdventureWorks")
	cases := []struct {
		i    int
		kind StreamKind
		want string
	}{
		{0, StreamData, "AdventureWorks_0.mdf"},
		{1, StreamLog, "AdventureWorks_1_log.ldf"},
		{2, StreamData, "AdventureWorks_2.mdf"},
	}
	for _, tc := range cases {
		if got := PhysicalFileName(db, tc.i, tc.kind); got != tc.want {
			t.Fatalf("PhysicalFileName(%d, %v): got %q want %q", tc.i, tc.kind, got, tc.want)
		}
	}
}

func TestRestoreStatement_TwoFileBackup(t *testing.T) {
	db := mustIdentifier(t, "AdventureWorks")
	entries := []ManifestEntry{
		{LogicalName: "AdventureWorks_Data", Kind: StreamData},
		{LogicalName: "AdventureWorks_Log", Kind: StreamLog},
	}
	stmt := RestoreStatement(db, "/var/opt/mssql/backup/AdventureWorks.bak", "/var/opt/mssql/data", entries)

	wantPrefix := "RESTORE DATABASE [AdventureWorks] FROM DISK = N'/var/opt/mssql/backup/AdventureWorks.bak' WITH REPLACE, RECOVERY, "
	if !strings.HasPrefix(stmt, wantPrefix) {
		t.Fatalf("statement prefix:\n got %s", stmt)
	}
	for _, clause := range []string{
		"MOVE N'AdventureWorks_Data' TO N'/var/opt/mssql/data/AdventureWorks_0.mdf'",
		"MOVE N'AdventureWorks_Log' TO N'/var/opt/mssql/data/AdventureWorks_1_log.ldf'",
	} {
		if !strings.Contains(stmt, clause) {
			t.Fatalf("statement missing %q:\n%s", clause, stmt)
		}
	}
	// One statement only: the move clauses must never be split into separate
	// batches, the restore is atomic at the engine level.
	if strings.Contains(stmt, ";") {
		t.Fatalf("restore must be a single statement:\n%s", stmt)
	}
}

func TestRestoreStatement_OrdinalFollowsManifestOrder(t *testing.T) {
	db := mustIdentifier(t, "Shop")
	entries := []ManifestEntry{
		{LogicalName: "primary", Kind: StreamData},
		{LogicalName: "secondary", Kind: StreamData},
		{LogicalName: "log", Kind: StreamLog},
	}
	stmt := RestoreStatement(db, "/b/Shop.bak", "/data", entries)
	for _, clause := range []string{
		"MOVE N'primary' TO N'/data/Shop_0.mdf'",
		"MOVE N'secondary' TO N'/data/Shop_1.mdf'",
		"MOVE N'log' TO N'/data/Shop_2_log.ldf'",
	} {
		if !strings.Contains(stmt, clause) {
			t.Fatalf("statement missing %q:\n%s", clause, stmt)
		}
	}
}

func TestRestoreStatement_EscapesQuotesInLogicalNames(t *testing.T) {
	db := mustIdentifier(t, "Shop")
	entries := []ManifestEntry{{LogicalName: "odd'name", Kind: StreamData}}
	stmt := RestoreStatement(db, "/b/Shop.bak", "/data", entries)
	if !strings.Contains(stmt, "MOVE N'odd''name'") {
		t.Fatalf("quote not doubled:\n%s", stmt)
	}
}

func TestIsLockContention(t *testing.T) {
	if !isLockContention(mssql.Error{Number: 3702}) {
		t.Fatal("3702 must classify as lock contention")
	}
	if !isLockContention(mssql.Error{Number: 3703}) {
		t.Fatal("3703 must classify as lock contention")
	}
	if isLockContention(mssql.Error{Number: 208}) {
		t.Fatal("unrelated engine error must not classify as lock contention")
	}
	if isLockContention(errors.New("plain error")) {
		t.Fatal("non-engine error must not classify as lock contention")
	}
	// Classification must survive wrapping.
	wrapped := fmt.Errorf("drop database: %w", mssql.Error{Number: 3702})
	if !isLockContention(wrapped) {
		t.Fatal("wrapped engine error must classify as lock contention")
	}
}
