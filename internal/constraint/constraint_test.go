package constraint

import (
	"errors"
	"reflect"
	"testing"
)

func TestParsePurposes(t *testing.T) {
	s, err := ParsePurposes([]string{"encrypt", "sign"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != PurposeEncrypt|PurposeSign {
		t.Errorf("want encrypt|sign, got %v", s)
	}
}

func TestParsePurposes_Unknown(t *testing.T) {
	_, err := ParsePurposes([]string{"encrypt", "launch"})
	if !errors.Is(err, ErrUnknownPurpose) {
		t.Errorf("want ErrUnknownPurpose, got %v", err)
	}
}

func TestParsePurposes_Empty(t *testing.T) {
	s, err := ParsePurposes(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Empty() {
		t.Errorf("want empty set, got %v", s)
	}
}

func TestPurposeSet_Has(t *testing.T) {
	s := PurposeEncrypt | PurposeDecrypt
	if !s.Has(PurposeEncrypt) {
		t.Error("want Has(encrypt) = true")
	}
	if !s.Has(PurposeEncrypt | PurposeDecrypt) {
		t.Error("want Has(encrypt|decrypt) = true")
	}
	if s.Has(PurposeSign) {
		t.Error("want Has(sign) = false")
	}
	if s.Has(PurposeEncrypt | PurposeSign) {
		t.Error("want Has(encrypt|sign) = false when sign is missing")
	}
}

func TestPurposeSet_Names(t *testing.T) {
	s := PurposeVerify | PurposeEncrypt
	got := s.Names()
	want := []string{"encrypt", "verify"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestPurposeSet_String(t *testing.T) {
	if got := (PurposeSign | PurposeVerify).String(); got != "sign,verify" {
		t.Errorf("want sign,verify, got %s", got)
	}
	if got := PurposeSet(0).String(); got != "(none)" {
		t.Errorf("want (none), got %s", got)
	}
}

func TestParseDigests(t *testing.T) {
	s, err := ParseDigests([]string{"sha256", "sha512"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != DigestSHA256|DigestSHA512 {
		t.Errorf("want sha256|sha512, got %v", s)
	}

	if _, err := ParseDigests([]string{"md5"}); !errors.Is(err, ErrUnknownDigest) {
		t.Errorf("want ErrUnknownDigest, got %v", err)
	}
}

func TestParsePaddings(t *testing.T) {
	s, err := ParsePaddings([]string{"pkcs7", "rsa-oaep"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != PaddingPKCS7|PaddingRSAOAEP {
		t.Errorf("want pkcs7|rsa-oaep, got %v", s)
	}

	if _, err := ParsePaddings([]string{"iso9797"}); !errors.Is(err, ErrUnknownPadding) {
		t.Errorf("want ErrUnknownPadding, got %v", err)
	}
}

func TestParseBlockModes(t *testing.T) {
	s, err := ParseBlockModes([]string{"gcm", "cbc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != BlockModeGCM|BlockModeCBC {
		t.Errorf("want gcm|cbc, got %v", s)
	}

	if _, err := ParseBlockModes([]string{"xts"}); !errors.Is(err, ErrUnknownBlockMode) {
		t.Errorf("want ErrUnknownBlockMode, got %v", err)
	}
}

func TestParseAuthenticators(t *testing.T) {
	s, err := ParseAuthenticators([]string{"lockscreen", "fingerprint"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != AuthenticatorLockScreen|AuthenticatorFingerprint {
		t.Errorf("want lockscreen|fingerprint, got %v", s)
	}

	if _, err := ParseAuthenticators([]string{"retina"}); !errors.Is(err, ErrUnknownAuthenticator) {
		t.Errorf("want ErrUnknownAuthenticator, got %v", err)
	}
}
