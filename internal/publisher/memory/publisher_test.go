package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/public-page-audit/internal/audit"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "harvests", audit.HarvestNotice{RunID: "a", PagesKept: 2})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "verifications", audit.VerifyNotice{RunID: "b", Checked: 4})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "harvests", msgs[0].Topic)

	var notice audit.VerifyNotice
	require.NoError(t, msgs[1].Decode(&notice))
	require.Equal(t, 4, notice.Checked)

	msgs[0].Topic = "modified"
	require.Equal(t, "harvests", pub.Messages()[0].Topic)
	require.NoError(t, pub.Close())
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, pub.Messages())
}
