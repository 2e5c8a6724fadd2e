package sessionpool

import "testing"

func TestDriverAndDSN(t *testing.T) {
	cases := []struct {
		name       string
		desc       Descriptor
		wantDriver string
	}{
		{
			name:       "mysql",
			desc:       Descriptor{Type: MySQL, Host: "127.0.0.1", Port: 3306, Name: "arma3", Username: "u", Password: "p"},
			wantDriver: "mysql",
		},
		{
			name:       "mssql",
			desc:       Descriptor{Type: MSSQL, Host: "127.0.0.1", Port: 1433, Name: "arma3", Username: "u", Password: "p"},
			wantDriver: "sqlserver",
		},
		{
			name:       "odbc",
			desc:       Descriptor{Type: ODBC, Host: "127.0.0.1", Port: 3306, Name: "arma3", Username: "u", Password: "p"},
			wantDriver: "odbc",
		},
		{
			name:       "sqlite",
			desc:       Descriptor{Type: SQLite, Name: "arma3.db"},
			wantDriver: "sqlite",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver, dsn := tc.desc.driverAndDSN()
			if driver != tc.wantDriver {
				t.Fatalf("driver = %q, want %q", driver, tc.wantDriver)
			}
			if dsn == "" {
				t.Fatal("dsn must not be empty")
			}
		})
	}
}

func TestIsServerStyle(t *testing.T) {
	if (&Descriptor{Type: SQLite}).IsServerStyle() {
		t.Fatal("SQLite must not be server-style")
	}
	for _, k := range []Kind{MySQL, ODBC, MSSQL} {
		if !(&Descriptor{Type: k}).IsServerStyle() {
			t.Fatalf("%s must be server-style", k)
		}
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", -7: "-7", 1433: "1433"}
	for in, want := range cases {
		if got := itoa(in); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", in, got, want)
		}
	}
}
