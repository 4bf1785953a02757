package validation

import "testing"

func TestValidUpiID(t *testing.T) {
	if err := ValidUpiID("upi_id", "name@upi")(); err != nil {
		t.Errorf("valid UPI rejected: %v", err)
	}
	if err := ValidUpiID("upi_id", "nameupi")(); err == nil {
		t.Error("UPI without @ accepted")
	}
	if err := ValidUpiID("upi_id", "  ")(); err == nil {
		t.Error("blank UPI accepted")
	}
}

func TestValidIFSC(t *testing.T) {
	if err := ValidIFSC("ifsc_code", "SBIN0001234")(); err != nil {
		t.Errorf("valid IFSC rejected: %v", err)
	}
	// lowercase input is upper-cased before matching
	if err := ValidIFSC("ifsc_code", "sbin0001234")(); err != nil {
		t.Errorf("lowercase IFSC rejected: %v", err)
	}
	for _, bad := range []string{"SBIN001", "SBIN00012345", "SBIN-001234", ""} {
		if err := ValidIFSC("ifsc_code", bad)(); err == nil {
			t.Errorf("invalid IFSC %q accepted", bad)
		}
	}
}

func TestValidBankAccount(t *testing.T) {
	if err := ValidBankAccount("bank_account_number", "123456789")(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}
	for _, bad := range []string{"12345678", "1234567890123456789", "12345abc9", ""} {
		if err := ValidBankAccount("bank_account_number", bad)(); err == nil {
			t.Errorf("invalid account %q accepted", bad)
		}
	}
}

func TestValidPrincipal(t *testing.T) {
	if err := ValidPrincipal("user", "alice-01")(); err != nil {
		t.Errorf("valid principal rejected: %v", err)
	}
	if err := ValidPrincipal("user", "a")(); err == nil {
		t.Error("too-short principal accepted")
	}
	// empty passes through; Required handles presence
	if err := ValidPrincipal("user", "")(); err != nil {
		t.Error("empty principal should not error here")
	}
}

func TestPositiveAmount(t *testing.T) {
	if err := PositiveAmount("amount", 10)(); err != nil {
		t.Errorf("positive amount rejected: %v", err)
	}
	if err := PositiveAmount("amount", 0)(); err == nil {
		t.Error("zero amount accepted")
	}
	if err := PositiveAmount("amount", -5)(); err == nil {
		t.Error("negative amount accepted")
	}
}

func TestValidateCollects(t *testing.T) {
	errs := Validate(
		ValidUpiID("upi_id", "bad"),
		ValidIFSC("ifsc_code", "short"),
	)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs.Error() == "" {
		t.Error("expected non-empty error string")
	}
}
