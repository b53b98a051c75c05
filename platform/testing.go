package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call records one invocation against the fake client.
type Call struct {
	Method      string
	CommunityID string
	AccountID   string
	MessageID   string
	Kind        RestrictKind
	Until       *time.Time
	Text        string
}

// FakeClient is an in-memory Client for tests. Failures are injected per
// method+community ("Restrict/community-2") or per method ("SendPrivate").
type FakeClient struct {
	lk    sync.Mutex
	calls []Call
	fail  map[string]error
}

var _ Client = (*FakeClient)(nil)

func NewFakeClient() *FakeClient {
	return &FakeClient{fail: make(map[string]error)}
}

// FailOn makes subsequent calls matching key return err. Key is either a
// bare method name or "Method/communityID". A nil err clears the
// injection.
func (f *FakeClient) FailOn(key string, err error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if err == nil {
		delete(f.fail, key)
		return
	}
	f.fail[key] = err
}

func (f *FakeClient) Calls(method string) []Call {
	f.lk.Lock()
	defer f.lk.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeClient) record(c Call) error {
	f.lk.Lock()
	defer f.lk.Unlock()
	if err, ok := f.fail[fmt.Sprintf("%s/%s", c.Method, c.CommunityID)]; ok {
		return err
	}
	if err, ok := f.fail[c.Method]; ok {
		return err
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *FakeClient) Restrict(ctx context.Context, communityID, accountID string, kind RestrictKind, until *time.Time) error {
	return f.record(Call{Method: "Restrict", CommunityID: communityID, AccountID: accountID, Kind: kind, Until: until})
}

func (f *FakeClient) Unrestrict(ctx context.Context, communityID, accountID string, kind RestrictKind) error {
	return f.record(Call{Method: "Unrestrict", CommunityID: communityID, AccountID: accountID, Kind: kind})
}

func (f *FakeClient) DeleteMessage(ctx context.Context, communityID, messageID string) error {
	return f.record(Call{Method: "DeleteMessage", CommunityID: communityID, MessageID: messageID})
}

func (f *FakeClient) SendPrivate(ctx context.Context, accountID, text string) error {
	return f.record(Call{Method: "SendPrivate", AccountID: accountID, Text: text})
}

func (f *FakeClient) ReplyInCommunity(ctx context.Context, communityID, replyToMessageID, text string) error {
	return f.record(Call{Method: "ReplyInCommunity", CommunityID: communityID, MessageID: replyToMessageID, Text: text})
}
