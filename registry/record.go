package registry

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/yllada/swiftrdp/common"
)

// Record layout, one profile per line:
//
//	name|address|logins|last_connected|note|group|credential_cipher|id
//
// Missing trailing fields read as "". Extra fields are ignored.
const (
	fieldName = iota
	fieldAddress
	fieldLogins
	fieldLastConnected
	fieldNote
	fieldGroup
	fieldCipher
	fieldID
	recordArity
)

const (
	fieldSeparator = "|"
	newlineToken   = "<NL>"
	pipeToken      = "<PIPE>"
	ltToken        = "<LT>"
)

// Every "<" in a note is written as ltToken, so a token can only appear in a
// stored note where the escaper put it. Replacement is single pass, which
// keeps records written before ltToken existed decoding as they did.
var (
	noteEscaper   = strings.NewReplacer("\r\n", newlineToken, "\n", newlineToken, "\r", newlineToken, "|", pipeToken, "<", ltToken)
	noteUnescaper = strings.NewReplacer(ltToken, "<", newlineToken, "\n", pipeToken, "|")
)

func escapeNote(note string) string {
	return noteEscaper.Replace(note)
}

func unescapeNote(note string) string {
	return noteUnescaper.Replace(note)
}

// encodeRecord renders a profile as a single line without the trailing newline.
func encodeRecord(p *Profile) string {
	fields := make([]string, recordArity)
	fields[fieldName] = p.Name
	fields[fieldAddress] = p.Address
	fields[fieldLogins] = strings.Join(p.Logins, ",")
	fields[fieldLastConnected] = p.LastConnected
	fields[fieldNote] = escapeNote(p.Note)
	fields[fieldGroup] = p.Group
	fields[fieldCipher] = p.CredentialCipher
	fields[fieldID] = p.ID
	return strings.Join(fields, fieldSeparator)
}

// decodeRecord parses a line, padding short records to full arity.
func decodeRecord(line string) *Profile {
	fields := strings.Split(line, fieldSeparator)
	for len(fields) < recordArity {
		fields = append(fields, "")
	}

	return &Profile{
		Name:             strings.TrimSpace(fields[fieldName]),
		Address:          strings.TrimSpace(fields[fieldAddress]),
		Logins:           common.SplitList(fields[fieldLogins]),
		LastConnected:    strings.TrimSpace(fields[fieldLastConnected]),
		Note:             unescapeNote(fields[fieldNote]),
		Group:            strings.TrimSpace(fields[fieldGroup]),
		CredentialCipher: strings.TrimSpace(fields[fieldCipher]),
		ID:               strings.TrimSpace(fields[fieldID]),
	}
}

// decodeRecords parses a whole connections file. Blank lines are skipped.
func decodeRecords(data []byte) []*Profile {
	profiles := make([]*Profile, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		profiles = append(profiles, decodeRecord(line))
	}
	return profiles
}

// encodeRecords renders a whole connections file.
func encodeRecords(profiles []*Profile) []byte {
	var buf bytes.Buffer
	for _, p := range profiles {
		if p.Temporary {
			continue
		}
		buf.WriteString(encodeRecord(p))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// decodeGroups parses the groups file: one name per line, duplicates dropped.
func decodeGroups(data []byte) []string {
	groups := make([]string, 0)
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		groups = append(groups, name)
	}
	return groups
}

func encodeGroups(groups []string) []byte {
	var buf bytes.Buffer
	for _, g := range groups {
		buf.WriteString(g)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
