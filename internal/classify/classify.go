// Package classify maps free-text record messages to coarse behavior types.
package classify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// BehaviorType is the coarse behavior a message describes.
type BehaviorType int

const (
	Unknown BehaviorType = iota
	Click
	Purchase
	Upgrade
	Combat
	Quest
	Login
	Logout
	SceneChange
)

var typeNames = [...]string{
	Unknown:     "Unknown",
	Click:       "Click",
	Purchase:    "Purchase",
	Upgrade:     "Upgrade",
	Combat:      "Combat",
	Quest:       "Quest",
	Login:       "Login",
	Logout:      "Logout",
	SceneChange: "SceneChange",
}

func (t BehaviorType) String() string {
	if t < Unknown || int(t) >= len(typeNames) {
		return fmt.Sprintf("BehaviorType(%d)", int(t))
	}
	return typeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t BehaviorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode as
// Unknown.
func (t *BehaviorType) UnmarshalText(text []byte) error {
	*t = ParseType(string(text))
	return nil
}

// ParseType returns the BehaviorType named s, or Unknown.
func ParseType(s string) BehaviorType {
	for i, name := range typeNames {
		if strings.EqualFold(name, s) {
			return BehaviorType(i)
		}
	}
	return Unknown
}

// KeywordGroup ties a behavior type to the lower-case keywords that signal it.
type KeywordGroup struct {
	Type     BehaviorType
	Keywords []string
}

// DefaultGroups is the fixed priority list. Earlier groups win when a
// message matches several; "level up" must stay ahead of the bare "level".
var DefaultGroups = []KeywordGroup{
	{Click, []string{"点击", "press", "tap"}},
	{Purchase, []string{"购买", "buy", "purchase"}},
	{Upgrade, []string{"升级", "level up", "upgrade"}},
	{Combat, []string{"战斗", "battle", "fight"}},
	{Quest, []string{"任务", "quest", "mission"}},
	{Login, []string{"登录", "login", "enter"}},
	{Logout, []string{"退出", "logout", "exit"}},
	{SceneChange, []string{"场景", "scene", "level"}},
}

// Classifier is safe for concurrent use; it holds no mutable state.
type Classifier struct {
	groups []KeywordGroup
}

// New builds a classifier over groups, tested in the given order.
func New(groups []KeywordGroup) *Classifier {
	cp := make([]KeywordGroup, len(groups))
	for i, g := range groups {
		kw := make([]string, len(g.Keywords))
		for j, k := range g.Keywords {
			kw[j] = fold(k)
		}
		cp[i] = KeywordGroup{Type: g.Type, Keywords: kw}
	}
	return &Classifier{groups: cp}
}

var defaultClassifier = New(DefaultGroups)

// Default returns the classifier over DefaultGroups.
func Default() *Classifier {
	return defaultClassifier
}

// Classify returns the type of the first group with a keyword contained in
// message, or Unknown.
func (c *Classifier) Classify(message string) BehaviorType {
	if message == "" {
		return Unknown
	}
	m := fold(message)
	for _, g := range c.groups {
		for _, kw := range g.Keywords {
			if kw != "" && strings.Contains(m, kw) {
				return g.Type
			}
		}
	}
	return Unknown
}

// Classify uses the default classifier.
func Classify(message string) BehaviorType {
	return defaultClassifier.Classify(message)
}

// fold normalizes to NFC and lower-cases. A Caser carries state, so one is
// built per call.
func fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}
