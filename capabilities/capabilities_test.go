package capabilities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRegistrar []string

func (f fakeRegistrar) Methods() []string { return []string(f) }

func TestCompute_DerivesFromRegisteredMethods(t *testing.T) {
	reg := fakeRegistrar{"initialize", "tools/list", "tools/call"}
	caps := Compute(reg, Options{})
	assert.True(t, caps.ToolsListChanged)
	assert.False(t, caps.ResourcesListChanged)
	assert.False(t, caps.PromptsListChanged)
}

func TestCompute_ResourcesSubscribeRequiresOptIn(t *testing.T) {
	reg := fakeRegistrar{"resources/list"}
	withoutOptIn := Compute(reg, Options{})
	withOptIn := Compute(reg, Options{ResourcesSubscribe: true})
	assert.False(t, withoutOptIn.ResourcesSubscribe)
	assert.True(t, withOptIn.ResourcesSubscribe)
	assert.True(t, withOptIn.ResourcesListChanged)
}

func TestCompute_LoggingIsExplicit(t *testing.T) {
	caps := Compute(fakeRegistrar{}, Options{Logging: true})
	assert.True(t, caps.Logging)
}
