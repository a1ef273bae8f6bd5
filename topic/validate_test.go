package topic

import "testing"

func TestValidateName(t *testing.T) {
	cases := map[string]bool{
		"a/b/c": true,
		"":      false,
		"a/+/c": false,
		"a/#":   false,
		"a b":   true, // spaces are legal in a topic name, only '#'/'+' are not
	}
	for name, want := range cases {
		if got := ValidateName(name); got != want {
			t.Errorf("ValidateName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidateFilter(t *testing.T) {
	cases := map[string]bool{
		"a/b/c":   true,
		"a/+/c":   true,
		"a/#":     true,
		"a/#/c":   false, // '#' must be the final level
		"a/b#":    false, // '#' must occupy a whole level
		"+/a":     true,
		"#":       true,
		"":        false,
	}
	for filter, want := range cases {
		if got := ValidateFilter(filter); got != want {
			t.Errorf("ValidateFilter(%q) = %v, want %v", filter, got, want)
		}
	}
}

func TestValidateNameRejectsOverlong(t *testing.T) {
	over := make([]byte, MaxTopicBytes+1)
	for i := range over {
		over[i] = 'a'
	}
	if ValidateName(string(over)) {
		t.Error("ValidateName should reject a name longer than MaxTopicBytes")
	}
	if !ValidateName(string(over[:MaxTopicBytes])) {
		t.Error("ValidateName should accept a name exactly MaxTopicBytes long")
	}
}

func TestMatchesPlusWildcard(t *testing.T) {
	if !Matches("a/+/c", "a/b/c") {
		t.Error("a/+/c should match a/b/c")
	}
	if Matches("a/+/c", "a/b/b/c") {
		t.Error("a/+/c should not match a/b/b/c: '+' matches exactly one level")
	}
}

func TestMatchesHashWildcard(t *testing.T) {
	if !Matches("a/#", "a") {
		t.Error("a/# should match a itself")
	}
	if !Matches("a/#", "a/b/c") {
		t.Error("a/# should match a/b/c")
	}
}

func TestMatchesDollarExclusion(t *testing.T) {
	if Matches("#", "$SYS/x") {
		t.Error("# must not match a topic starting with $SYS")
	}
	if Matches("+/a", "$SYS/a") {
		t.Error("+/a must not match a topic starting with $SYS")
	}
	if !Matches("$SYS/+", "$SYS/a") {
		t.Error("an explicit $SYS filter should still match $SYS topics")
	}
}
