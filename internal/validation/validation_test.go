package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePathAcceptsCleanRelativePaths(t *testing.T) {
	assert.NoError(t, ValidatePath("a.txt"))
	assert.NoError(t, ValidatePath("src/lib/a.txt"))
}

func TestValidatePathRejectsEmpty(t *testing.T) {
	assert.Error(t, ValidatePath(""))
}

func TestValidatePathRejectsLeadingSlash(t *testing.T) {
	assert.Error(t, ValidatePath("/a.txt"))
}

func TestValidatePathRejectsTrailingSlash(t *testing.T) {
	assert.Error(t, ValidatePath("a/"))
}

func TestValidatePathRejectsEmptyComponent(t *testing.T) {
	assert.Error(t, ValidatePath("a//b"))
}

func TestValidatePathRejectsDotComponents(t *testing.T) {
	assert.Error(t, ValidatePath("./a.txt"))
	assert.Error(t, ValidatePath("a/../b.txt"))
}
