package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_ShortRecordPadded(t *testing.T) {
	p := decodeRecord("srv|10.0.0.1|admin")

	assert.Equal(t, "srv", p.Name)
	assert.Equal(t, "10.0.0.1", p.Address)
	assert.Equal(t, []string{"admin"}, p.Logins)
	assert.Empty(t, p.LastConnected)
	assert.Empty(t, p.Note)
	assert.Empty(t, p.Group)
	assert.Empty(t, p.CredentialCipher)
	assert.Empty(t, p.ID)

	again := decodeRecord(encodeRecord(p))
	assert.True(t, p.Equal(again))
	assert.Len(t, strings.Split(encodeRecord(p), fieldSeparator), recordArity)
}

func TestDecodeRecord_LegacySevenFields(t *testing.T) {
	p := decodeRecord("srv|h|a,b|2024-01-02 03:04:05|hello|ops|v2:abc")

	assert.Equal(t, []string{"a", "b"}, p.Logins)
	assert.Equal(t, "2024-01-02 03:04:05", p.LastConnected)
	assert.Equal(t, "ops", p.Group)
	assert.Equal(t, "v2:abc", p.CredentialCipher)
	assert.Empty(t, p.ID)
}

func TestDecodeRecord_ExtraFieldsIgnored(t *testing.T) {
	p := decodeRecord("srv|h|a|N/A|n|g|c|id-1|future|more")
	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, "c", p.CredentialCipher)
}

func TestNoteEscaping(t *testing.T) {
	tests := []struct {
		name string
		note string
	}{
		{"plain", "just text"},
		{"newlines", "line one\nline two\n"},
		{"pipes", "a|b|c"},
		{"mixed", "x|y\nz"},
		{"empty", ""},
		{"literal tokens", "see <NL> and <PIPE> in docs"},
		{"angle brackets", "a < b > c"},
		{"escape token", "<LT>"},
		{"nested tokens", "<<NL>>|<PIPE\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{Name: "n", Address: "a", Note: tt.note, ID: "id"}
			line := encodeRecord(p)

			assert.NotContains(t, line, "\n")
			assert.Len(t, strings.Split(line, fieldSeparator), recordArity)
			assert.Equal(t, tt.note, decodeRecord(line).Note)
		})
	}
}

func TestNoteEscaping_LegacyRecords(t *testing.T) {
	// Written before "<" was escaped.
	p := decodeRecord("n|a||Never|one<NL>two<PIPE>three < four||")
	assert.Equal(t, "one\ntwo|three < four", p.Note)
}

func TestNoteEscaping_CarriageReturns(t *testing.T) {
	p := &Profile{Name: "n", Address: "a", Note: "one\r\ntwo"}
	assert.Equal(t, "one\ntwo", decodeRecord(encodeRecord(p)).Note)
}

func TestDecodeRecords_SkipsBlankLines(t *testing.T) {
	data := []byte("a|1\n\n   \nb|2\r\n")
	profiles := decodeRecords(data)
	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].Name)
	assert.Equal(t, "2", profiles[1].Address)
}

func TestEncodeRecords_SkipsTemporary(t *testing.T) {
	out := encodeRecords([]*Profile{
		{Name: "kept", Address: "h1"},
		NewTemporary("h2"),
	})
	assert.Equal(t, 1, strings.Count(string(out), "\n"))
	assert.Contains(t, string(out), "kept|h1")
}

func TestDecodeGroups(t *testing.T) {
	groups := decodeGroups([]byte("ops\n\n dev \nops\n"))
	assert.Equal(t, []string{"ops", "dev"}, groups)
	assert.Equal(t, "ops\ndev\n", string(encodeGroups(groups)))
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		wantErr bool
	}{
		{"valid", Profile{Name: "n", Address: "h", Logins: []string{"u"}}, false},
		{"missing name", Profile{Address: "h"}, true},
		{"missing address", Profile{Name: "n"}, true},
		{"pipe in name", Profile{Name: "a|b", Address: "h"}, true},
		{"newline in group", Profile{Name: "n", Address: "h", Group: "g\n"}, true},
		{"comma in login", Profile{Name: "n", Address: "h", Logins: []string{"a,b"}}, true},
		{"note may span lines", Profile{Name: "n", Address: "h", Note: "a\nb|c"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfileClone(t *testing.T) {
	p := &Profile{Name: "n", Address: "h", Logins: []string{"a"}}
	c := p.Clone()
	c.Logins[0] = "b"
	assert.Equal(t, "a", p.Logins[0])
}

func TestNewTemporary(t *testing.T) {
	p := NewTemporary("10.0.0.5")
	assert.True(t, p.Temporary)
	assert.Equal(t, "10.0.0.5", p.Name)
	assert.Equal(t, "10.0.0.5", p.Address)
	assert.False(t, p.HasCredential())
}
