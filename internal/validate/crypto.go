package validate

import (
	"crypto/aes"
	"crypto/cipher"

	"miassistant/internal/miaerr"
)

// validationKey and validationIV are fixed protocol constants derived from
// the vendor client, not secrets — they are never rotated.
var (
	validationKey = []byte("miuiotavalided11")
	validationIV  = []byte("0102030405060708")
)

// pkcs7Pad appends a full padding block even when data is already aligned,
// matching the vendor client's behavior.
func pkcs7Pad(data []byte) []byte {
	pad := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data)+pad)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	return padded
}

// pkcs7Unpad strips PKCS#7 padding, returning an error for a malformed or
// empty trailer.
func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, miaerr.Crypto(nil, "ciphertext length %d not a multiple of block size", len(data))
	}
	pad := int(data[len(data)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, miaerr.Crypto(nil, "invalid PKCS#7 padding byte %d", pad)
	}
	return data[:len(data)-pad], nil
}

// encrypt AES-128-CBC encrypts pkcs7-padded plaintext under the fixed
// validation key/IV.
func encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(validationKey)
	if err != nil {
		return nil, miaerr.Crypto(err, "building AES cipher")
	}
	padded := pkcs7Pad(plain)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, validationIV).CryptBlocks(out, padded)
	return out, nil
}

// decrypt AES-128-CBC decrypts cipher text and strips PKCS#7 padding.
func decrypt(cipherText []byte) ([]byte, error) {
	block, err := aes.NewCipher(validationKey)
	if err != nil {
		return nil, miaerr.Crypto(err, "building AES cipher")
	}
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, miaerr.Crypto(nil, "ciphertext length %d not a multiple of block size", len(cipherText))
	}
	plain := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, validationIV).CryptBlocks(plain, cipherText)
	return pkcs7Unpad(plain)
}
