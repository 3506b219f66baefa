package utils

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gowebpki/jcs"

	"github.com/weisyn/multisig-authz-go/types"
)

// maxCanonicalDepth 嵌套深度上限（防止自引用指针导致无限递归）
const maxCanonicalDepth = 64

var (
	bigIntType        = reflect.TypeOf(big.Int{})
	jsonNumberType    = reflect.TypeOf(json.Number(""))
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// Canonicalize 返回 v 的规范化字符串
//
// **规则**：
// - 每一层映射的键按 RFC 8785 排序（键的插入顺序不影响输出）
// - 任意宽度的整数（int8..int64、uint8..uint64、*big.Int、整数形式的 json.Number）
//   一律输出为十进制字符串，例如 {"n":5} 与 {"n":big.NewInt(5)} 都得到 {"n":"5"}
// - 无空白、不做 HTML 转义
//
// 无法得到确定输出的值（chan、func、complex、NaN/Inf、非字符串键等）
// 返回 SERIALIZATION_ERROR。
func Canonicalize(v interface{}) (string, error) {
	b, err := CanonicalBytes(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalBytes 返回 v 的规范化字节
func CanonicalBytes(v interface{}) ([]byte, error) {
	normalized, err := normalize(reflect.ValueOf(v), 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, types.ErrSerialization(fmt.Sprintf("encode normalized value: %v", err))
	}

	out, err := jcs.Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	if err != nil {
		return nil, types.ErrSerialization(fmt.Sprintf("jcs transform: %v", err))
	}
	return out, nil
}

// normalize 将任意 Go 值转换为只含 map/slice/string/bool/nil/float64/json.Number 的树
func normalize(v reflect.Value, depth int) (interface{}, error) {
	if depth > maxCanonicalDepth {
		return nil, types.ErrSerialization("value nesting too deep (cyclic reference?)")
	}
	if !v.IsValid() {
		return nil, nil
	}

	// big.Int 优先于 TextMarshaler（nil 指针需要单独处理）
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Ptr && v.Type().Elem() == bigIntType {
			return v.Interface().(*big.Int).String(), nil
		}
		return normalize(v.Elem(), depth+1)
	}

	if v.Type() == bigIntType {
		bi := v.Interface().(big.Int)
		return bi.String(), nil
	}
	if v.Type() == jsonNumberType {
		return normalizeNumber(json.Number(v.String()))
	}

	if v.Type().Implements(textMarshalerType) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, types.ErrSerialization(fmt.Sprintf("marshal %s as text: %v", v.Type(), err))
		}
		return string(text), nil
	}
	if v.Type().Implements(jsonMarshalerType) {
		return normalizeViaJSON(v.Interface(), depth)
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(v.Float())
	case reflect.String:
		return v.String(), nil
	case reflect.Slice:
		if v.IsNil() {
			return []interface{}{}, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return hexutil.Encode(v.Bytes()), nil
		}
		return normalizeList(v, depth)
	case reflect.Array:
		return normalizeList(v, depth)
	case reflect.Map:
		return normalizeMap(v, depth)
	case reflect.Struct:
		return normalizeViaJSON(v.Interface(), depth)
	default:
		return nil, types.ErrSerialization(fmt.Sprintf("unsupported kind %s", v.Kind()))
	}
}

func normalizeList(v reflect.Value, depth int) (interface{}, error) {
	out := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		elem, err := normalize(v.Index(i), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

func normalizeMap(v reflect.Value, depth int) (interface{}, error) {
	if v.IsNil() {
		return map[string]interface{}{}, nil
	}
	out := make(map[string]interface{}, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, types.ErrSerialization(fmt.Sprintf("duplicate map key %q after normalization", key))
		}
		elem, err := normalize(iter.Value(), depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = elem
	}
	return out, nil
}

// mapKey 只接受字符串、整数与 TextMarshaler 类型的键
func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.Interface {
		if k.IsNil() {
			return "", types.ErrSerialization("nil map key")
		}
		k = k.Elem()
	}
	if k.Type().Implements(textMarshalerType) {
		text, err := k.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", types.ErrSerialization(fmt.Sprintf("marshal map key: %v", err))
		}
		return string(text), nil
	}
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", types.ErrSerialization(fmt.Sprintf("unsupported map key type %s", k.Type()))
}

// normalizeViaJSON 结构体与 json.Marshaler 先走标准 JSON（尊重 json tag），再按数字规则归一
func normalizeViaJSON(v interface{}, depth int) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, types.ErrSerialization(fmt.Sprintf("pre-marshal %T: %v", v, err))
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, types.ErrSerialization(fmt.Sprintf("decode %T: %v", v, err))
	}
	return normalize(reflect.ValueOf(generic), depth+1)
}

func normalizeNumber(n json.Number) (interface{}, error) {
	if bi, ok := new(big.Int).SetString(n.String(), 10); ok {
		return bi.String(), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, types.ErrSerialization(fmt.Sprintf("invalid number %q", n))
	}
	return normalizeFloat(f)
}

// normalizeFloat 整数值的浮点数同样输出十进制字符串，其余保持数字
func normalizeFloat(f float64) (interface{}, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, types.ErrSerialization("NaN and Inf have no canonical form")
	}
	if f == math.Trunc(f) {
		bf := new(big.Float).SetFloat64(f)
		bi, _ := bf.Int(nil)
		return bi.String(), nil
	}
	return f, nil
}

// ParseInteger 将规范化形式的整数（十进制字符串、json.Number、整数或整数值浮点数）解析为 *big.Int
func ParseInteger(v interface{}) (*big.Int, error) {
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("integer is null")
	case *big.Int:
		if t == nil {
			return nil, fmt.Errorf("integer is null")
		}
		return new(big.Int).Set(t), nil
	case string:
		bi, ok := new(big.Int).SetString(t, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal integer %q", t)
		}
		return bi, nil
	case json.Number:
		return ParseInteger(t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return nil, fmt.Errorf("not an integer: %v", t)
		}
		bi, _ := new(big.Float).SetFloat64(t).Int(nil)
		return bi, nil
	case int:
		return big.NewInt(int64(t)), nil
	case int32:
		return big.NewInt(int64(t)), nil
	case int64:
		return big.NewInt(t), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(t)), nil
	case uint64:
		return new(big.Int).SetUint64(t), nil
	}
	return nil, fmt.Errorf("unsupported integer type %T", v)
}

// CanonicalScalar 返回单个字段值的规范化字符串形式（字符串不带引号）
func CanonicalScalar(v interface{}) (string, error) {
	normalized, err := normalize(reflect.ValueOf(v), 0)
	if err != nil {
		return "", err
	}
	switch t := normalized.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	}
	b, err := CanonicalBytes(normalized)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
