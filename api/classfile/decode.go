// Package classfile provides a JSON convenience decoder for
// linker.ClassFile (spec.md §6 "Class file format"). This is
// explicitly not the class-file container parser spec.md §1 keeps out
// of scope: it reads a hand-authorable JSON fixture shape, not the
// binary wire format, and method/static-init bodies are still
// hex-encoded already-assembled bytecode (internal/bytecode.Encode's
// output) rather than a textual instruction syntax, since writing a
// bytecode assembler is its own out-of-scope concern.
package classfile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Ki11erRabbit/rowan/internal/bytecode"
	"github.com/Ki11erRabbit/rowan/internal/linker"
)

type jsonClassFile struct {
	Name    string   `json:"name"`
	Parent  string   `json:"parent,omitempty"`
	Strings []string `json:"strings,omitempty"`

	Members       []jsonMember `json:"members,omitempty"`
	StaticMembers []jsonMember `json:"static_members,omitempty"`

	StaticInit string `json:"static_init,omitempty"` // hex-encoded bytecode

	OwnMethods    []jsonMethod   `json:"own_methods,omitempty"`
	StaticMethods []jsonMethod   `json:"static_methods,omitempty"`
	Overrides     []jsonOverride `json:"overrides,omitempty"`

	NativeLibraryBase string `json:"native_library_base,omitempty"`
	CustomDropExport  string `json:"custom_drop_export,omitempty"`
}

type jsonMember struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"` // "primitive" | "object"
	Tag          string `json:"tag,omitempty"`
	NativeSized  bool   `json:"native_sized,omitempty"`
	SizingExport string `json:"sizing_export,omitempty"`
}

type jsonMethod struct {
	Name       string   `json:"name"`
	ArgTypes   []string `json:"arg_types,omitempty"`
	ReturnType string   `json:"return_type"`

	// Exactly one of Body/NativeExport should be set; neither set
	// means Location.Kind stays LocationBlank.
	Body         string `json:"body,omitempty"` // hex-encoded bytecode
	NativeExport string `json:"native_export,omitempty"`
}

type jsonOverride struct {
	Ancestor string       `json:"ancestor"`
	Methods  []jsonMethod `json:"methods"`
}

// DecodeJSON reads one ClassFile from r's JSON convenience form.
func DecodeJSON(r io.Reader) (*linker.ClassFile, error) {
	var jf jsonClassFile
	if err := json.NewDecoder(r).Decode(&jf); err != nil {
		return nil, fmt.Errorf("classfile: decode: %w", err)
	}
	return fromJSON(&jf)
}

func fromJSON(jf *jsonClassFile) (*linker.ClassFile, error) {
	cf := &linker.ClassFile{
		Name:              jf.Name,
		Parent:            jf.Parent,
		Strings:           jf.Strings,
		NativeLibraryBase: jf.NativeLibraryBase,
		CustomDropExport:  jf.CustomDropExport,
	}

	if jf.StaticInit != "" {
		body, err := decodeHex("static_init", jf.StaticInit)
		if err != nil {
			return nil, err
		}
		cf.StaticInit = body
	}

	var err error
	if cf.Members, err = decodeMembers(jf.Members); err != nil {
		return nil, err
	}
	if cf.StaticMembers, err = decodeMembers(jf.StaticMembers); err != nil {
		return nil, err
	}
	if cf.OwnMethods, err = decodeMethods(jf.OwnMethods); err != nil {
		return nil, err
	}
	if cf.StaticMethods, err = decodeMethods(jf.StaticMethods); err != nil {
		return nil, err
	}
	for _, jo := range jf.Overrides {
		methods, err := decodeMethods(jo.Methods)
		if err != nil {
			return nil, err
		}
		cf.Overrides = append(cf.Overrides, linker.RawOverride{Ancestor: jo.Ancestor, Methods: methods})
	}
	return cf, nil
}

func decodeMembers(in []jsonMember) ([]linker.RawMember, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]linker.RawMember, len(in))
	for i, jm := range in {
		var kind linker.MemberKind
		switch jm.Kind {
		case "", "primitive":
			kind = linker.MemberPrimitive
		case "object":
			kind = linker.MemberObject
		default:
			return nil, fmt.Errorf("classfile: member %q: unknown kind %q", jm.Name, jm.Kind)
		}
		var tag bytecode.TypeTag
		if jm.Tag != "" {
			var err error
			if tag, err = parseTypeTag(jm.Tag); err != nil {
				return nil, fmt.Errorf("classfile: member %q: %w", jm.Name, err)
			}
		}
		out[i] = linker.RawMember{
			Name:         jm.Name,
			Kind:         kind,
			Tag:          tag,
			NativeSized:  jm.NativeSized,
			SizingExport: jm.SizingExport,
		}
	}
	return out, nil
}

func decodeMethods(in []jsonMethod) ([]linker.RawMethod, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]linker.RawMethod, len(in))
	for i, jm := range in {
		ret, err := parseTypeTag(jm.ReturnType)
		if err != nil {
			return nil, fmt.Errorf("classfile: method %q: return type: %w", jm.Name, err)
		}
		args := make([]bytecode.TypeTag, len(jm.ArgTypes))
		for j, a := range jm.ArgTypes {
			if args[j], err = parseTypeTag(a); err != nil {
				return nil, fmt.Errorf("classfile: method %q: arg %d: %w", jm.Name, j, err)
			}
		}

		loc := linker.Location{}
		switch {
		case jm.Body != "":
			body, err := decodeHex(fmt.Sprintf("method %q body", jm.Name), jm.Body)
			if err != nil {
				return nil, err
			}
			loc = linker.Location{Kind: linker.LocationBytecode, Bytes: body}
		case jm.NativeExport != "":
			loc = linker.Location{Kind: linker.LocationNative, NativeExport: jm.NativeExport}
		}

		out[i] = linker.RawMethod{Name: jm.Name, ArgTypes: args, ReturnType: ret, Location: loc}
	}
	return out, nil
}

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("classfile: %s: invalid hex: %w", field, err)
	}
	return b, nil
}

// parseTypeTag is the reverse of bytecode.TypeTag.String, needed only
// for this JSON convenience form; nothing in the core runtime parses a
// textual type name.
func parseTypeTag(s string) (bytecode.TypeTag, error) {
	switch s {
	case "u8":
		return bytecode.U8, nil
	case "u16":
		return bytecode.U16, nil
	case "u32":
		return bytecode.U32, nil
	case "u64":
		return bytecode.U64, nil
	case "i8":
		return bytecode.I8, nil
	case "i16":
		return bytecode.I16, nil
	case "i32":
		return bytecode.I32, nil
	case "i64":
		return bytecode.I64, nil
	case "f32":
		return bytecode.F32, nil
	case "f64":
		return bytecode.F64, nil
	case "object":
		return bytecode.TObject, nil
	case "str":
		return bytecode.TStr, nil
	case "void", "":
		return bytecode.TVoid, nil
	case "native":
		return bytecode.TNative, nil
	default:
		return 0, fmt.Errorf("unknown type tag %q", s)
	}
}
