package types

import "github.com/fxamacker/cbor/v2"

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func cborDecode(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}
