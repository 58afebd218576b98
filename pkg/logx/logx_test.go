package logx

import "testing"

func TestDebugEnabledFor_DisabledByDefault(t *testing.T) {
	SetDebug(false, nil)
	if DebugEnabledFor("workflow") {
		t.Error("Expected debug disabled by default")
	}
}

func TestDebugEnabledFor_AllDomains(t *testing.T) {
	SetDebug(true, nil)
	defer SetDebug(false, nil)

	if !DebugEnabledFor("workflow") {
		t.Error("Expected debug enabled for all domains when no filter set")
	}
	if !DebugEnabledFor("cache") {
		t.Error("Expected debug enabled for all domains when no filter set")
	}
}

func TestDebugEnabledFor_DomainFilter(t *testing.T) {
	SetDebug(true, []string{"workflow", " cache "})
	defer SetDebug(false, nil)

	if !DebugEnabledFor("workflow") {
		t.Error("Expected debug enabled for workflow")
	}
	if !DebugEnabledFor("cache") {
		t.Error("Expected debug enabled for cache (whitespace trimmed)")
	}
	if DebugEnabledFor("agent") {
		t.Error("Expected debug disabled for unlisted domain")
	}
}
