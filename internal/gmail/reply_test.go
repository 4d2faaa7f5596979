package gmail

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRaw(t *testing.T, raw string) string {
	t.Helper()
	b, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	return string(b)
}

func TestReplyRaw(t *testing.T) {
	r := Reply{
		From:      "me@example.com",
		To:        "boss@example.com",
		Subject:   "Re: Plan",
		Body:      "<p>ok</p>",
		ThreadID:  "t1",
		InReplyTo: "<abc@mail.example.com>",
	}

	want := "From: me@example.com\r\n" +
		"To: boss@example.com\r\n" +
		"Subject: Re: Plan\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"MIME-Version: 1.0\r\n" +
		"In-Reply-To: <abc@mail.example.com>\r\n" +
		"References: <abc@mail.example.com>\r\n" +
		"\r\n" +
		"<p>ok</p>"

	if got := decodeRaw(t, r.Raw()); got != want {
		t.Errorf("Raw() =\n%q\nwant\n%q", got, want)
	}
}

func TestReplyRaw_WithoutThreadingHeaders(t *testing.T) {
	r := Reply{To: "a@x.com", Subject: "Hi", Body: "x", ThreadID: "t1"}

	got := decodeRaw(t, r.Raw())
	if strings.Contains(got, "In-Reply-To") || strings.Contains(got, "References") {
		t.Errorf("unexpected threading headers in %q", got)
	}
	if strings.HasPrefix(got, "From:") {
		t.Errorf("empty From should be omitted, got %q", got)
	}
}

func TestReplyRaw_EncodesNonASCIISubject(t *testing.T) {
	r := Reply{To: "a@x.com", Subject: "Re: Grüße", Body: "x", ThreadID: "t1"}

	got := decodeRaw(t, r.Raw())
	if !strings.Contains(got, "Subject: =?UTF-8?b?") {
		t.Errorf("subject not RFC 2047 encoded: %q", got)
	}
}

func TestReplyValidate(t *testing.T) {
	tests := []struct {
		name    string
		reply   Reply
		wantErr bool
	}{
		{name: "valid", reply: Reply{To: "a@x.com", ThreadID: "t1"}},
		{name: "missing recipient", reply: Reply{ThreadID: "t1"}, wantErr: true},
		{name: "missing thread", reply: Reply{To: "a@x.com"}, wantErr: true},
		{name: "header injection in in-reply-to", reply: Reply{To: "a@x.com", ThreadID: "t1", InReplyTo: "<m1@x.com>\r\nBcc: spy@evil.com"}, wantErr: true},
		{name: "bare newline in in-reply-to", reply: Reply{To: "a@x.com", ThreadID: "t1", InReplyTo: "<m1@x.com>\nBcc: spy@evil.com"}, wantErr: true},
		{name: "line break in recipient", reply: Reply{To: "a@x.com\r\nCc: spy@evil.com", ThreadID: "t1"}, wantErr: true},
		{name: "line break in sender", reply: Reply{From: "me@x.com\n", To: "a@x.com", ThreadID: "t1"}, wantErr: true},
		{name: "valid threading header", reply: Reply{To: "a@x.com", ThreadID: "t1", InReplyTo: "<m1@x.com>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reply.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSendReply(t *testing.T) {
	f := &fakeGmail{}
	client := newTestClient(t, f)

	msg, err := client.SendReply(context.Background(), Reply{
		From:     "me@example.com",
		To:       "boss@example.com",
		Subject:  "Re: Plan",
		Body:     "<p>ok</p>",
		ThreadID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent1", msg.Id)
	assert.Equal(t, int64(1700000000000), msg.InternalDate)

	require.Len(t, f.sent, 1)
	assert.Equal(t, "t1", f.sent[0].ThreadId)
	assert.Contains(t, decodeRaw(t, f.sent[0].Raw), "To: boss@example.com\r\n")
}

func TestSendReply_Invalid(t *testing.T) {
	f := &fakeGmail{}
	client := newTestClient(t, f)

	_, err := client.SendReply(context.Background(), Reply{ThreadID: "t1"})
	assert.Error(t, err)
	assert.Empty(t, f.sent)
}

func TestSaveDraft(t *testing.T) {
	f := &fakeGmail{}
	client := newTestClient(t, f)

	draft, err := client.SaveDraft(context.Background(), Reply{
		To:       "boss@example.com",
		Subject:  "Re: Plan",
		Body:     "<p>later</p>",
		ThreadID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", draft.Id)

	require.Len(t, f.drafts, 1)
	assert.Equal(t, "t1", f.drafts[0].Message.ThreadId)
	assert.True(t, strings.HasSuffix(decodeRaw(t, f.drafts[0].Message.Raw), "\r\n\r\n<p>later</p>"))
	assert.Empty(t, f.sent)
}
