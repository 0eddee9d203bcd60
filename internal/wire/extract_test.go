package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageEventCipher(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    string
		wantID  string
		wantOK  bool
		wantErr bool
	}{
		{
			name: "string envelope",
			input: map[string]any{
				"id":       "m1",
				"envelope": "cipher",
			},
			want:   "cipher",
			wantOK: true,
		},
		{
			name: "object with c",
			input: map[string]any{
				"id": "m1",
				"envelope": map[string]any{
					"c": "cipher",
				},
			},
			want:   "cipher",
			wantOK: true,
		},
		{
			name: "tagged object",
			input: map[string]any{
				"id": "m1",
				"envelope": map[string]any{
					"t": "encrypted",
					"c": "cipher",
				},
			},
			want:   "cipher",
			wantOK: true,
		},
		{
			name: "localId extracted",
			input: map[string]any{
				"id":       "m1",
				"localId":  "lid-1",
				"envelope": "cipher",
			},
			want:   "cipher",
			wantID: "lid-1",
			wantOK: true,
		},
		{
			name: "missing envelope yields ok=false",
			input: map[string]any{
				"id": "m1",
			},
			wantOK: false,
		},
		{
			name: "unsupported envelope yields error",
			input: map[string]any{
				"id": "m1",
				"envelope": map[string]any{
					"nope": "x",
				},
			},
			wantErr: true,
		},
		{
			name: "unknown tag yields error",
			input: map[string]any{
				"id": "m1",
				"envelope": map[string]any{
					"t": "plain",
					"c": "cipher",
				},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var evt MessageEvent
			require.NoError(t, Decode(tc.input, &evt))

			gotCipher, ok, err := evt.Cipher()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.want, gotCipher)
			require.Equal(t, tc.wantID, evt.LocalID)
		})
	}
}

func TestDecodeAndToPayloadRoundTrip(t *testing.T) {
	out := OutboundMessage{
		LocalID:   "tok-1",
		ChannelID: "general",
		Envelope:  "cipher",
		ReplyToID: "m0",
	}
	payload, err := ToPayload(out)
	require.NoError(t, err)
	require.Equal(t, "tok-1", payload["localId"])
	require.Equal(t, "general", payload["channelId"])
	require.NotContains(t, payload, "peerId")

	var ack SendAck
	require.NoError(t, Decode(map[string]any{
		"localId":   "tok-1",
		"id":        "srv-1",
		"status":    "sent",
		"timestamp": float64(1234),
	}, &ack))
	require.Equal(t, "srv-1", ack.ID)
	require.Equal(t, int64(1234), ack.Timestamp)
}
