package main

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/vstarodubtsev/cifsd/smb"
)

// Pipe state word reported by PEEK_NMPIPE and QUERY_NMPIPE_STATE: message
// mode, connected.
const pipeStateConnected = 0x0300

func handleTransaction(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var treq smb.TransRequest
	if err := treq.Decode(ctx.h, ctx.msg, words, data, true); err != nil {
		return noChain, err
	}

	// The LANMAN RAP endpoint announces itself by name, with no setup
	// words.
	if strings.EqualFold(treq.Name, "\\PIPE\\LANMAN") {
		return noChain, smb.Status(smb.STATUS_NOT_SUPPORTED).Err()
	}

	sub, err := treq.SubCommand()
	if err != nil {
		return noChain, err
	}

	switch sub {
	case smb.TRANS_TRANSACT_NMPIPE:
		err = transTransactPipe(s, ctx, &treq)
	case smb.TRANS_READ_NMPIPE:
		err = transReadPipe(s, ctx, &treq)
	case smb.TRANS_WRITE_NMPIPE:
		err = transWritePipe(s, ctx, &treq)
	case smb.TRANS_PEEK_NMPIPE:
		err = transPeekPipe(s, ctx, &treq)
	case smb.TRANS_SET_NMPIPE_STATE, smb.TRANS_WAIT_NMPIPE:
		tr := smb.TransResponse{}
		err = tr.Encode(ctx.resp)
	default:
		err = smb.Status(smb.STATUS_NOT_SUPPORTED).Err()
	}
	return noChain, err
}

// pipeForTrans resolves the fid in the transaction setup to an open pipe.
// The caller must put() the handle.
func pipeForTrans(ctx *request, treq *smb.TransRequest) (*open, error) {
	fid, err := treq.PipeFid()
	if err != nil {
		return nil, err
	}
	fp, err := ctx.session.lookupOpen(fid)
	if err != nil {
		return nil, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	if fp.pipe == nil {
		fp.put()
		return nil, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	return fp, nil
}

// transTransactPipe is the combined write-then-read pipe exchange carrying
// one DCE/RPC fragment each way.
func transTransactPipe(s *server, ctx *request, treq *smb.TransRequest) error {
	fp, err := pipeForTrans(ctx, treq)
	if err != nil {
		return err
	}
	defer fp.put()

	if len(treq.Data) > 0 {
		if _, err := fp.pipe.Write(treq.Data); err != nil {
			return err
		}
	}

	buf := make([]byte, int(treq.MaxDataCount))
	n, err := fp.pipe.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}

	tr := smb.TransResponse{Data: buf[:n]}
	if err := tr.Encode(ctx.resp); err != nil {
		return err
	}
	if pipeAvailable(fp.pipe) > 0 {
		ctx.resp.Header().SetStatus(smb.STATUS_BUFFER_OVERFLOW)
	}
	return nil
}

func transReadPipe(s *server, ctx *request, treq *smb.TransRequest) error {
	fp, err := pipeForTrans(ctx, treq)
	if err != nil {
		return err
	}
	defer fp.put()

	buf := make([]byte, int(treq.MaxDataCount))
	n, err := fp.pipe.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}

	tr := smb.TransResponse{Data: buf[:n]}
	if err := tr.Encode(ctx.resp); err != nil {
		return err
	}
	if pipeAvailable(fp.pipe) > 0 {
		ctx.resp.Header().SetStatus(smb.STATUS_BUFFER_OVERFLOW)
	}
	return nil
}

func transWritePipe(s *server, ctx *request, treq *smb.TransRequest) error {
	fp, err := pipeForTrans(ctx, treq)
	if err != nil {
		return err
	}
	defer fp.put()

	n, err := fp.pipe.Write(treq.Data)
	if err != nil {
		return err
	}

	params := make([]byte, 2)
	binary.LittleEndian.PutUint16(params, uint16(n))
	tr := smb.TransResponse{Parameters: params}
	return tr.Encode(ctx.resp)
}

func transPeekPipe(s *server, ctx *request, treq *smb.TransRequest) error {
	fp, err := pipeForTrans(ctx, treq)
	if err != nil {
		return err
	}
	defer fp.put()

	avail := pipeAvailable(fp.pipe)
	params := make([]byte, 6)
	binary.LittleEndian.PutUint16(params[0:2], uint16(avail))
	binary.LittleEndian.PutUint16(params[2:4], uint16(avail))
	binary.LittleEndian.PutUint16(params[4:6], pipeStateConnected)
	tr := smb.TransResponse{Parameters: params}
	return tr.Encode(ctx.resp)
}
