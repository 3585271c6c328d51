package validation

import (
	"strings"
	"testing"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		// contract names as Foundry writes them under out/
		{"contract simple", ValidateContractName, "Token", false},
		{"contract versioned", ValidateContractName, "Token_V2", false},
		{"contract leading underscore", ValidateContractName, "_Proxy", false},
		{"contract too long", ValidateContractName, strings.Repeat("a", 129), true},
		{"contract starts with digit", ValidateContractName, "1Token", true},
		{"contract hyphen", ValidateContractName, "my-token", true},
		{"contract path traversal", ValidateContractName, "../Token", true},
		{"contract empty", ValidateContractName, "", true},

		// descriptor versions
		{"version plain", ValidateVersion, "1.0.0", false},
		{"version v prefix", ValidateVersion, "v1.0.0", false},
		{"version prerelease", ValidateVersion, "1.0.0-rc.1", false},
		{"version build metadata", ValidateVersion, "1.0.0+build.123", false},
		{"version major only", ValidateVersion, "1", true},
		{"version no patch", ValidateVersion, "v1.0", true},
		{"version bad characters", ValidateVersion, "1.0.0-beta!", true},
		{"version word", ValidateVersion, "latest", true},
		{"version empty", ValidateVersion, "", true},

		// deployer and admin addresses
		{"address lower", ValidateAddress, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", false},
		{"address checksummed", ValidateAddress, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", false},
		{"address no prefix", ValidateAddress, "f39fd6e51aad88f6f4ce6ab8827279cfffb92266", true},
		{"address short", ValidateAddress, "0x1234", true},
		{"address long", ValidateAddress, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb922660", true},
		{"address non hex", ValidateAddress, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb9226g", true},

		// deployment salts
		{"salt", ValidateSalt, "0x" + strings.Repeat("ab", 32), false},
		{"salt zero", ValidateSalt, "0x" + strings.Repeat("0", 64), false},
		{"salt no prefix", ValidateSalt, strings.Repeat("ab", 32), true},
		{"salt short", ValidateSalt, "0xabcd", true},
		{"salt non hex", ValidateSalt, "0x" + strings.Repeat("zz", 32), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("%q: error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestVersionHelpers(t *testing.T) {
	tests := []struct {
		input      string
		normalized string
		prerelease bool
	}{
		{"1.0.0", "1.0.0", false},
		{"v1.0.0", "1.0.0", false},
		{"v1.0.0-beta", "1.0.0-beta", true},
		{"1.0.0-rc.1", "1.0.0-rc.1", true},
		{"2.1.0+build.7", "2.1.0+build.7", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeVersion(tt.input); got != tt.normalized {
				t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.input, got, tt.normalized)
			}
			if got := IsPrerelease(tt.input); got != tt.prerelease {
				t.Errorf("IsPrerelease(%q) = %v, want %v", tt.input, got, tt.prerelease)
			}
		})
	}
}

func TestValidateChainID(t *testing.T) {
	for _, id := range []int64{1, 31337} {
		if err := ValidateChainID(id); err != nil {
			t.Errorf("ValidateChainID(%d) error = %v", id, err)
		}
	}
	for _, id := range []int64{0, -1} {
		if err := ValidateChainID(id); err == nil {
			t.Errorf("ValidateChainID(%d) expected error", id)
		}
	}
}
