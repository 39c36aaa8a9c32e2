package spapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ==================== 请求签名 ====================

const (
	signAlgorithm = "AWS4-HMAC-SHA256"
	signService   = "execute-api"
	signTerminal  = "aws4_request"
	amzDateLayout = "20060102T150405Z"
	scopeLayout   = "20060102"
)

// Signer 规范化请求签名器
// 同样的输入（含时间戳）必然产生同样的签名，单测依赖这条性质
type Signer struct {
	creds *Credentials
}

// NewSigner 创建签名器
func NewSigner(creds *Credentials) *Signer {
	return &Signer{creds: creds}
}

// Sign 对出站请求签名
// 流程：规范化请求 → 待签字符串 → 派生作用域密钥 → HMAC 签名
// 会写入 X-Amz-Date / X-Amz-Content-Sha256 / Authorization 三个头
func (s *Signer) Sign(req *http.Request, body []byte, t time.Time) {
	t = t.UTC()
	amzDate := t.Format(amzDateLayout)
	dateStamp := t.Format(scopeLayout)

	payloadHash := hashHex(body)

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", payloadHash)
	req.Header.Set("Host", req.URL.Host)

	// 1. 规范化请求
	canonicalHeaders, signedHeaders := canonicalizeHeaders(req.Header)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	// 2. 待签字符串
	scope := strings.Join([]string{dateStamp, s.creds.Region, signService, signTerminal}, "/")
	stringToSign := strings.Join([]string{
		signAlgorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	// 3. 链式 HMAC 派生作用域密钥
	key := deriveSigningKey(s.creds.SecretKey, dateStamp, s.creds.Region, signService)

	// 4. 终签
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("Authorization",
		signAlgorithm+
			" Credential="+s.creds.AccessKeyID+"/"+scope+
			", SignedHeaders="+signedHeaders+
			", Signature="+signature)
}

// ==================== 规范化 ====================

// canonicalURI 路径段逐段转义，空路径归一为 "/"
func canonicalURI(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// canonicalQuery 查询参数按 key 排序后重新编码
func canonicalQuery(u *url.URL) string {
	query := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		values := query[k]
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// canonicalizeHeaders 头名小写、值去冗余空白、按名排序
// 返回 (canonicalHeaders, signedHeaders)
func canonicalizeHeaders(header http.Header) (string, string) {
	names := make([]string, 0, len(header))
	for name := range header {
		lower := strings.ToLower(name)
		// Authorization 自身不参与签名
		if lower == "authorization" {
			continue
		}
		names = append(names, lower)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := header.Values(http.CanonicalHeaderKey(name))
		trimmed := make([]string, len(values))
		for i, v := range values {
			trimmed[i] = strings.Join(strings.Fields(v), " ")
		}
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.Join(trimmed, ","))
		b.WriteString("\n")
	}
	return b.String(), strings.Join(names, ";")
}

// ==================== 密钥派生 ====================

// deriveSigningKey secret → date → region → service → terminal 链式 HMAC
func deriveSigningKey(secret, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, signTerminal)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
