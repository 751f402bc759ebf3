package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want BehaviorType
	}{
		{"Player pressed START", Click},
		{"玩家点击了按钮", Click},
		{"BUY sword x1", Purchase},
		{"完成购买", Purchase},
		{"Hero level up to 12", Upgrade},
		{"weapon upgrade complete", Upgrade},
		{"battle started", Combat},
		{"Quest accepted", Quest},
		{"user login ok", Login},
		{"用户登录", Login},
		{"logout requested", Logout},
		{"Scene loaded: Forest", SceneChange},
		{"entering level 3", Login}, // "enter" precedes "level"
		{"heartbeat", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	// Login precedes SceneChange in the priority list.
	assert.Equal(t, Login, Classify("login then scene switch"))
	assert.Equal(t, Login, Classify("scene switch then login"))
	// Click is checked before everything else.
	assert.Equal(t, Click, Classify("tap to buy"))
}

func TestClassifyDeterministic(t *testing.T) {
	msgs := []string{"fight in the scene", "purchase upgrade", "random text", "EXIT game"}
	for _, m := range msgs {
		first := Classify(m)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Classify(m))
		}
	}
}

func TestCustomGroups(t *testing.T) {
	c := New([]KeywordGroup{
		{Quest, []string{"Daily"}},
		{Combat, []string{"daily"}},
	})
	assert.Equal(t, Quest, c.Classify("DAILY reward"))
	assert.Equal(t, Unknown, c.Classify("nothing"))
}

func TestTypeText(t *testing.T) {
	for _, bt := range []BehaviorType{Unknown, Click, Purchase, Upgrade, Combat, Quest, Login, Logout, SceneChange} {
		text, err := bt.MarshalText()
		assert.NoError(t, err)
		var back BehaviorType
		assert.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, bt, back)
	}
	assert.Equal(t, Unknown, ParseType("teleport"))
}
