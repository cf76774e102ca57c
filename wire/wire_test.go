package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/atsika/driverhub/digest"
	"github.com/stretchr/testify/require"
)

func sampleInfo() DriverInfo {
	var info DriverInfo
	info.Len = 4096
	for i := range info.Digest {
		info.Digest[i] = byte(i)
	}
	for i := range info.Sig {
		info.Sig[i] = byte(255 - i)
	}
	return info
}

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello")
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameZeroLengthRejected(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, WriteFrame(&buf, nil), ErrEmptyFrame)

	// A zero-length header written directly must also fail to read.
	buf.Write([]byte{0x00, 0x00})
	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrEmptyFrame)
}

func TestFrameMaxLengthRoundtrips(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB}, MaxFrameLen)
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameTooLargeRejected(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0xAB}, MaxFrameLen+1)
	require.ErrorIs(t, WriteFrame(&buf, payload), ErrFrameTooLarge)
}

func TestHelloRoundtrip(t *testing.T) {
	for _, h := range []Hello{
		{Kind: HelloNewbie},
		{Kind: HelloCached, Digest: digest.Of([]byte("a"))},
		{Kind: HelloOneshot, Digest: digest.Of([]byte("b"))},
	} {
		var buf bytes.Buffer
		require.NoError(t, WriteTyped(&buf, &h))

		var got Hello
		require.NoError(t, ReadTyped(&buf, &got))
		require.Equal(t, h, got)
	}
}

func TestWelcomeRoundtrip(t *testing.T) {
	info := sampleInfo()
	for _, w := range []Welcome{
		{Kind: WelcomeCurrent},
		{Kind: WelcomeObsolete},
		{Kind: WelcomeDownload, URI: "", Info: info},
		{Kind: WelcomeDownload, URI: "http://localhost:2003/" + info.Digest.String(), Info: info},
	} {
		var buf bytes.Buffer
		require.NoError(t, WriteTyped(&buf, &w))

		var got Welcome
		require.NoError(t, ReadTyped(&buf, &got))
		require.Equal(t, w, got)
	}
}

func TestUpRequestDownResponseRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	ping := UpRequest{Kind: UpRequestPing, Ping: 7}
	require.NoError(t, WriteTyped(&buf, &ping))
	var gotReq UpRequest
	require.NoError(t, ReadTyped(&buf, &gotReq))
	require.Equal(t, ping, gotReq)

	bye := UpRequest{Kind: UpRequestBye}
	buf.Reset()
	require.NoError(t, WriteTyped(&buf, &bye))
	gotReq = UpRequest{}
	require.NoError(t, ReadTyped(&buf, &gotReq))
	require.Equal(t, bye, gotReq)

	pong := DownResponse{Kind: DownResponsePong, Pong: 7}
	buf.Reset()
	require.NoError(t, WriteTyped(&buf, &pong))
	var gotResp DownResponse
	require.NoError(t, ReadTyped(&buf, &gotResp))
	require.Equal(t, pong, gotResp)

	upgrade := DownResponse{Kind: DownResponseProposeUpgrade, URI: "http://x/y", Info: sampleInfo()}
	buf.Reset()
	require.NoError(t, WriteTyped(&buf, &upgrade))
	gotResp = DownResponse{}
	require.NoError(t, ReadTyped(&buf, &gotResp))
	require.Equal(t, upgrade, gotResp)
}

func TestUpControlRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	uc := UpControl{Kind: UpControlDownload, URI: "http://x", Info: sampleInfo()}
	require.NoError(t, WriteTyped(&buf, &uc))

	var got UpControl
	require.NoError(t, ReadTyped(&buf, &got))
	require.Equal(t, uc, got)
}

func TestTrailingBytesRejected(t *testing.T) {
	var buf bytes.Buffer
	h := Hello{Kind: HelloNewbie}
	encoded := h.marshal(nil)
	encoded = append(encoded, 0xFF) // inject trailing byte
	require.NoError(t, WriteFrame(&buf, encoded))

	var got Hello
	err := ReadTyped(&buf, &got)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "trailing") || errorsIsTrailing(err))
}

func errorsIsTrailing(err error) bool {
	for err != nil {
		if err == ErrTrailingBytes {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
