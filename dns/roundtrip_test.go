// Copyright 2023 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dns

import (
	"encoding/binary"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

func TestNewQuestionTypes(t *testing.T) {
	testDomain := "example.com."
	qname, err := dnsmessage.NewName(testDomain)
	require.NoError(t, err)
	for _, qtype := range []dnsmessage.Type{dnsmessage.TypeA, dnsmessage.TypeAAAA, dnsmessage.TypeCNAME} {
		t.Run(qtype.String(), func(t *testing.T) {
			q, err := NewQuestion(testDomain, qtype)
			require.NoError(t, err)
			require.Equal(t, qname, q.Name)
			require.Equal(t, qtype, q.Type)
			require.Equal(t, dnsmessage.ClassINET, q.Class)
		})
	}
}

func TestNewQuestionNotFQDN(t *testing.T) {
	testDomain := "example.com"
	q, err := NewQuestion(testDomain, dnsmessage.TypeAAAA)
	require.NoError(t, err)
	require.Equal(t, dnsmessage.MustNewName("example.com."), q.Name)
}

func TestNewQuestionRoot(t *testing.T) {
	testDomain := "."
	qname, err := dnsmessage.NewName(testDomain)
	require.NoError(t, err)
	q, err := NewQuestion(testDomain, dnsmessage.TypeAAAA)
	require.NoError(t, err)
	require.Equal(t, qname, q.Name)
}

func TestNewQuestionEmpty(t *testing.T) {
	testDomain := ""
	q, err := NewQuestion(testDomain, dnsmessage.TypeAAAA)
	require.NoError(t, err)
	require.Equal(t, dnsmessage.MustNewName("."), q.Name)
}

func TestNewQuestionLongName(t *testing.T) {
	testDomain := strings.Repeat("a.", 200)
	_, err := NewQuestion(testDomain, dnsmessage.TypeAAAA)
	require.Error(t, err)
}

func Test_appendRequest(t *testing.T) {
	q, err := NewQuestion(".", dnsmessage.TypeAAAA)
	require.NoError(t, err)

	id := uint16(1234)
	offset := 2
	buf, err := appendRequest(id, *q, make([]byte, offset))
	require.NoError(t, err)
	require.Equal(t, make([]byte, offset), buf[:offset])

	// offset + 12 bytes header + 5 question + 11 EDNS(0) OPT RR
	require.Equal(t, offset+28, len(buf))

	require.Equal(t, id, binary.BigEndian.Uint16(buf[offset:]))

	var request dnsmessage.Message
	err = request.Unpack(buf[offset:])
	require.NoError(t, err)
	require.Equal(t, id, request.ID)
	require.Equal(t, 1, len(request.Questions))
	require.Equal(t, *q, request.Questions[0])
	require.Equal(t, 0, len(request.Answers))
	require.Equal(t, 0, len(request.Authorities))
	// EDNS(0) OPT resource record.
	require.Equal(t, 1, len(request.Additionals))
	// As per https://datatracker.ietf.org/doc/html/rfc6891#section-6.1.2
	optRR := dnsmessage.Resource{
		Header: dnsmessage.ResourceHeader{
			Name:   dnsmessage.MustNewName("."),
			Type:   dnsmessage.TypeOPT,
			Class:  maxDNSPacketSize,
			TTL:    0,
			Length: 0,
		},
		Body: &dnsmessage.OPTResource{},
	}
	require.Equal(t, optRR, request.Additionals[0])
}

func Test_equalASCIIName(t *testing.T) {
	require.True(t, equalASCIIName(dnsmessage.MustNewName("My-Example.Com"), dnsmessage.MustNewName("mY-eXAMPLE.cOM")))
	require.False(t, equalASCIIName(dnsmessage.MustNewName("example.com"), dnsmessage.MustNewName("example.net")))
	require.False(t, equalASCIIName(dnsmessage.MustNewName("example.com"), dnsmessage.MustNewName("example.com.br")))
	require.False(t, equalASCIIName(dnsmessage.MustNewName("example.com"), dnsmessage.MustNewName("myexample.com")))
}

func Test_checkResponse(t *testing.T) {
	reqID := uint16(4242)
	reqQ := dnsmessage.Question{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeAAAA,
		Class: dnsmessage.ClassINET,
	}
	expectedHdr := dnsmessage.Header{ID: reqID, Response: true}
	expectedQs := []dnsmessage.Question{reqQ}
	t.Run("Match", func(t *testing.T) {
		err := checkResponse(reqID, reqQ, expectedHdr, expectedQs)
		require.NoError(t, err)
	})
	t.Run("CaseInsensitive", func(t *testing.T) {
		mixedQ := reqQ
		mixedQ.Name = dnsmessage.MustNewName("Example.Com.")
		err := checkResponse(reqID, reqQ, expectedHdr, []dnsmessage.Question{mixedQ})
		require.NoError(t, err)
	})
	t.Run("NotResponse", func(t *testing.T) {
		badHdr := expectedHdr
		badHdr.Response = false
		err := checkResponse(reqID, reqQ, badHdr, expectedQs)
		require.Error(t, err)
	})
	t.Run("BadID", func(t *testing.T) {
		badHdr := expectedHdr
		badHdr.ID = reqID + 1
		err := checkResponse(reqID, reqQ, badHdr, expectedQs)
		require.Error(t, err)
	})
	t.Run("NoQuestions", func(t *testing.T) {
		err := checkResponse(reqID, reqQ, expectedHdr, []dnsmessage.Question{})
		require.Error(t, err)
	})
	t.Run("BadQuestionType", func(t *testing.T) {
		badQ := reqQ
		badQ.Type = dnsmessage.TypeA
		err := checkResponse(reqID, reqQ, expectedHdr, []dnsmessage.Question{badQ})
		require.Error(t, err)
	})
	t.Run("BadQuestionClass", func(t *testing.T) {
		badQ := reqQ
		badQ.Class = dnsmessage.ClassCHAOS
		err := checkResponse(reqID, reqQ, expectedHdr, []dnsmessage.Question{badQ})
		require.Error(t, err)
	})
	t.Run("BadQuestionName", func(t *testing.T) {
		badQ := reqQ
		badQ.Name = dnsmessage.MustNewName("notexample.invalid.")
		err := checkResponse(reqID, reqQ, expectedHdr, []dnsmessage.Question{badQ})
		require.Error(t, err)
	})
}

func newMessageResponse(req dnsmessage.Message, answer dnsmessage.ResourceBody, ttl uint32) (dnsmessage.Message, error) {
	var resp dnsmessage.Message
	q := req.Questions[0]
	resp.ID = req.ID
	resp.Header.Response = true
	resp.Questions = []dnsmessage.Question{q}
	resp.Answers = []dnsmessage.Resource{{
		Header: dnsmessage.ResourceHeader{Name: q.Name, Type: q.Type, Class: q.Class, TTL: ttl},
		Body:   answer,
	}}
	resp.Authorities = []dnsmessage.Resource{}
	resp.Additionals = []dnsmessage.Resource{}
	return resp, nil
}

func Test_dnsPacketRoundtrip(t *testing.T) {
	front, back := net.Pipe()
	q, err := NewQuestion("example.com.", dnsmessage.TypeAAAA)
	require.NoError(t, err)

	type result struct {
		msg *dnsmessage.Message
		err error
	}
	done := make(chan result)
	go func() {
		msg, err := dnsPacketRoundtrip(front, *q)
		done <- result{msg, err}
	}()

	buf := make([]byte, 512)
	n, err := back.Read(buf)
	require.NoError(t, err)
	var reqMsg dnsmessage.Message
	require.NoError(t, reqMsg.Unpack(buf[:n]))

	// A stray response with a mismatched ID should be ignored.
	badResp, err := newMessageResponse(reqMsg, &dnsmessage.AAAAResource{AAAA: [16]byte(net.IPv6loopback)}, 100)
	require.NoError(t, err)
	badResp.ID = reqMsg.ID + 1
	badBuf, err := (&badResp).Pack()
	require.NoError(t, err)
	_, err = back.Write(badBuf)
	require.NoError(t, err)

	wantResp, err := newMessageResponse(reqMsg, &dnsmessage.AAAAResource{AAAA: [16]byte(net.IPv6loopback)}, 100)
	require.NoError(t, err)
	wantBuf, err := (&wantResp).Pack()
	require.NoError(t, err)
	_, err = back.Write(wantBuf)
	require.NoError(t, err)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, wantResp, *res.msg)
}

func Test_dnsStreamRoundtrip(t *testing.T) {
	front, back := net.Pipe()
	q, err := NewQuestion("example.com.", dnsmessage.TypeAAAA)
	require.NoError(t, err)

	type result struct {
		msg *dnsmessage.Message
		err error
	}
	done := make(chan result)
	go func() {
		msg, err := dnsStreamRoundtrip(front, *q)
		done <- result{msg, err}
	}()

	var msgLen uint16
	require.NoError(t, binary.Read(back, binary.BigEndian, &msgLen))
	buf := make([]byte, msgLen)
	_, err = back.Read(buf)
	require.NoError(t, err)
	var reqMsg dnsmessage.Message
	require.NoError(t, reqMsg.Unpack(buf))

	wantResp, err := newMessageResponse(reqMsg, &dnsmessage.AAAAResource{AAAA: [16]byte(net.IPv6loopback)}, 100)
	require.NoError(t, err)
	wantBuf, err := (&wantResp).Pack()
	require.NoError(t, err)
	require.NoError(t, binary.Write(back, binary.BigEndian, uint16(len(wantBuf))))
	_, err = back.Write(wantBuf)
	require.NoError(t, err)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, wantResp, *res.msg)
}

func Test_dnsStreamRoundtrip_ShortRead(t *testing.T) {
	front, back := net.Pipe()
	q, err := NewQuestion("example.com.", dnsmessage.TypeAAAA)
	require.NoError(t, err)

	type result struct {
		msg *dnsmessage.Message
		err error
	}
	done := make(chan result)
	go func() {
		msg, err := dnsStreamRoundtrip(front, *q)
		done <- result{msg, err}
	}()

	// Read the request so the test doesn't race on it, then hang up early.
	buf := make([]byte, 512)
	_, err = back.Read(buf)
	require.NoError(t, err)
	require.NoError(t, back.Close())

	res := <-done
	require.Error(t, res.err)
	require.Nil(t, res.msg)
}
