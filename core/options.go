package core

import (
	"github.com/ebogdum/diskfs/backends"
)

// Option is a per-call write option: a bare backends.Visibility, an
// Options map, or a NameRule for PutFile.
type Option = backends.Option

// Options is a full per-call option map.
type Options = backends.Config

const nameRuleKey = "name_rule"

// NameRule selects how PutFile names stored files. The built-in rules
// are RuleDate, RuleMD5 and RuleSHA1; any other value is ignored.
type NameRule string

const (
	RuleDate NameRule = "date"
	RuleMD5  NameRule = "md5"
	RuleSHA1 NameRule = "sha1"
)

// Apply records the rule for PutFile.
func (r NameRule) Apply(c backends.Config) { c[nameRuleKey] = r }

// NameFunc names stored files with a caller supplied function.
type NameFunc func(*File) (string, error)

// Apply records the function for PutFile.
func (f NameFunc) Apply(c backends.Config) { c[nameRuleKey] = f }
