package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsBlacklistedImportSingleForm(t *testing.T) {
	f := New(DefaultBlacklist)
	src := "package main\nimport \"os/exec\"\nfunc main(){}"

	hit, name := f.ContainsBlacklistedImport(src)
	assert.True(t, hit)
	assert.Equal(t, "os/exec", name)
}

func TestContainsBlacklistedImportBlockForm(t *testing.T) {
	f := New(DefaultBlacklist)
	src := "package main\nimport (\n\t\"fmt\"\n\t\"syscall\" // raw syscalls\n)\nfunc main(){}"

	hit, name := f.ContainsBlacklistedImport(src)
	assert.True(t, hit)
	assert.Equal(t, "syscall", name)
}

func TestContainsBlacklistedImportCleanSource(t *testing.T) {
	f := New(DefaultBlacklist)
	src := "package main\nimport \"fmt\"\nfunc main(){fmt.Println(\"hi\")}"

	hit, name := f.ContainsBlacklistedImport(src)
	assert.False(t, hit)
	assert.Empty(t, name)
}

func TestContainsBlacklistedImportExactMatchOnly(t *testing.T) {
	f := New(DefaultBlacklist)
	// "nets" is not "net": byte-exact matching only, no substring/prefix match.
	src := "package main\nimport \"nets\"\nfunc main(){}"

	hit, _ := f.ContainsBlacklistedImport(src)
	assert.False(t, hit)
}

func TestContainsBlacklistedImportIdempotent(t *testing.T) {
	f := New(DefaultBlacklist)
	src := "package main\nimport \"unsafe\"\nfunc main(){}"

	hit1, name1 := f.ContainsBlacklistedImport(src)
	hit2, name2 := f.ContainsBlacklistedImport(src)
	assert.Equal(t, hit1, hit2)
	assert.Equal(t, name1, name2)
}
