package preview

import "errors"

var (
	ErrDecode = errors.New("decode source image")
	ErrConfig = errors.New("invalid preview configuration")
	ErrScale  = errors.New("scale image")
	ErrBrand  = errors.New("render brand strip")
	ErrEncode = errors.New("encode jpeg")
)
