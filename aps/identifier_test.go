package aps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLineageURN(t *testing.T) {
	assert.True(t, IsLineageURN("urn:adsk.wipprod:dm.lineage:abc123DEF"))
	assert.True(t, IsLineageURN("urn:adsk.wipprod:dm.lineage:a-b_c"))

	assert.False(t, IsLineageURN("urn:adsk.wipprod:fs.file:vf.abc?version=1"))
	assert.False(t, IsLineageURN("urn:adsk.wipprod:dm.lineage:"))
	assert.False(t, IsLineageURN("urn:adsk.wipprod:dm.lineage:abc with spaces"))
	assert.False(t, IsLineageURN(""))
}

func TestIsVersionURN(t *testing.T) {
	assert.True(t, IsVersionURN("urn:adsk.wipprod:fs.file:vf.abc123?version=1"))
	assert.True(t, IsVersionURN("urn:adsk.wipprod:fs.file:vf.a-b_c?version=42"))

	assert.False(t, IsVersionURN("urn:adsk.wipprod:fs.file:vf.abc123"))
	assert.False(t, IsVersionURN("urn:adsk.wipprod:fs.file:vf.abc?version="))
	assert.False(t, IsVersionURN("urn:adsk.wipprod:dm.lineage:abc123"))
	assert.False(t, IsVersionURN(""))
}

func TestStripProjectPrefix(t *testing.T) {
	assert.True(t, HasStrippablePrefix("b.93f2a1"))
	assert.Equal(t, "93f2a1", StripProjectPrefix("b.93f2a1"))

	assert.False(t, HasStrippablePrefix("93f2a1"))
	assert.Equal(t, "93f2a1", StripProjectPrefix("93f2a1"))
}
