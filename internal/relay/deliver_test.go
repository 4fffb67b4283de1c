package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	logx "shotrelay/pkg/logx"
)

func testCoordinator(chat *fakeChat, th *Throttle) *Coordinator {
	if th == nil {
		th = NewThrottle(100, time.Minute)
	}
	return NewCoordinator(chat, th, logx.Nop(), nil)
}

func TestDeliverPrefixesPerStep(t *testing.T) {
	t.Parallel()
	chat := newFakeChat()
	chat.ids["a@studio.test"] = "UA"
	chat.ids["b@studio.test"] = "UB"

	c := testCoordinator(chat, nil)
	rs := RecipientSet{"anim": {"a@studio.test"}, "comp": {"b@studio.test"}}
	dctx := Context{Project: "Atlas", Sequence: "SQ010", Entity: "SH020"}

	rep := c.Deliver(context.Background(), rs, dctx, "body text")
	if rep.Sent != 2 || rep.Skipped != 0 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}

	texts := chat.sentTexts()
	joined := strings.Join(texts, "\n--\n")
	if !strings.Contains(joined, "In Atlas|SQ010|SH020|anim\nbody text") {
		t.Fatalf("anim prefix missing in %q", joined)
	}
	if !strings.Contains(joined, "In Atlas|SQ010|SH020|comp\nbody text") {
		t.Fatalf("comp prefix missing in %q", joined)
	}
}

func TestDeliverSkipsUnresolvedRecipient(t *testing.T) {
	t.Parallel()
	chat := newFakeChat()
	chat.ids["known@studio.test"] = "UK"

	c := testCoordinator(chat, nil)
	rs := RecipientSet{"anim": {"ghost@studio.test", "known@studio.test"}}

	rep := c.Deliver(context.Background(), rs, Context{}, "hello")
	if rep.Sent != 1 || rep.Skipped != 1 {
		t.Fatalf("report = %+v, want one sent one skipped", rep)
	}
	if len(chat.sent) != 1 || chat.sent[0].ChatID != "UK" {
		t.Fatalf("sent = %v", chat.sent)
	}
}

func TestDeliverRecordsSendFailureWithoutAborting(t *testing.T) {
	t.Parallel()
	chat := newFakeChat()
	chat.ids["a@studio.test"] = "UA"
	chat.ids["b@studio.test"] = "UB"
	chat.failSends["UA"] = true

	c := testCoordinator(chat, nil)
	rs := RecipientSet{"anim": {"a@studio.test", "b@studio.test"}}

	rep := c.Deliver(context.Background(), rs, Context{}, "hello")
	if rep.Failed != 1 || rep.Sent != 1 {
		t.Fatalf("report = %+v, want one failed one sent", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0] != "a@studio.test" {
		t.Fatalf("failures = %v", rep.Failures)
	}
}

func TestDeliverRateLimited(t *testing.T) {
	t.Parallel()
	chat := newFakeChat()
	chat.ids["a@studio.test"] = "UA"
	chat.ids["b@studio.test"] = "UB"
	chat.ids["c@studio.test"] = "UC"

	th := NewThrottle(2, time.Minute)
	c := testCoordinator(chat, th)
	rs := RecipientSet{"anim": {"a@studio.test", "b@studio.test", "c@studio.test"}}

	rep := c.Deliver(context.Background(), rs, Context{}, "hello")
	if rep.Sent != 2 || rep.RateLimited != 1 {
		t.Fatalf("report = %+v, want 2 sent 1 rate-limited", rep)
	}
}
