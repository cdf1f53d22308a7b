package engine

import (
	"testing"
	"time"
)

func TestApplyNilPointersLeaveFields(t *testing.T) {
	rec := ChannelRecord{ChannelID: "UCa", Title: "Kept", SubscriberCount: 42}
	Apply(&rec, ChannelPatch{Handle: Str("@new")})
	if rec.Title != "Kept" || rec.SubscriberCount != 42 {
		t.Errorf("untouched fields changed: %+v", rec)
	}
	if rec.Handle != "@new" {
		t.Errorf("Handle = %q, want @new", rec.Handle)
	}
}

func TestApplyLabelOnUncheckedRecord(t *testing.T) {
	rec := ChannelRecord{ChannelID: "UCa", CheckType: CheckPendingReview}
	applied := Apply(&rec, ChannelPatch{
		Label: &Label{IsBot: true, IsBotChecked: false, CheckType: CheckPropagated},
	})
	if !applied {
		t.Error("label not applied to unchecked record")
	}
	if !rec.IsBot || rec.CheckType != CheckPropagated {
		t.Errorf("record = %+v", rec)
	}
}

func TestApplyRejectsDowngradeOfCheckedRecord(t *testing.T) {
	for _, ct := range []BotCheckType{CheckManual, CheckConfirmed} {
		rec := ChannelRecord{ChannelID: "UCa", IsBot: false, IsBotChecked: true, CheckType: ct}
		applied := Apply(&rec, ChannelPatch{
			Label:          &Label{IsBot: true, IsBotChecked: false, CheckType: CheckPropagated},
			LastExpandedAt: timePtr(time.Now()),
		})
		if applied {
			t.Errorf("label applied over %s", ct)
		}
		if rec.IsBot || !rec.IsBotChecked || rec.CheckType != ct {
			t.Errorf("checked label mutated: %+v", rec)
		}
		if rec.LastExpandedAt == nil {
			t.Error("non-label fields must still merge")
		}
	}
}

func TestApplyAvatarMetricsLastWriteWins(t *testing.T) {
	rec := ChannelRecord{ChannelID: "UCa", AvatarMetrics: &AvatarMetrics{BotProbability: 0.2}}
	Apply(&rec, ChannelPatch{AvatarMetrics: &AvatarMetrics{BotProbability: 0.9}})
	if rec.AvatarMetrics.BotProbability != 0.9 {
		t.Errorf("BotProbability = %v, want 0.9 (no averaging)", rec.AvatarMetrics.BotProbability)
	}
}

func TestBotCheckTypeValid(t *testing.T) {
	for _, ct := range []BotCheckType{CheckPendingReview, CheckPropagated, CheckManual, CheckConfirmed} {
		if !ct.Valid() {
			t.Errorf("%q reported invalid", ct)
		}
	}
	if BotCheckType("automated").Valid() {
		t.Error("unknown state reported valid")
	}
}

func timePtr(t time.Time) *time.Time { return &t }
