package ggpk

import (
	"path"
	"strings"
)

// Format classifies what kind of data a file holds, judged by its name.
type Format uint8

// Known formats.
const (
	FormatUnknown Format = iota
	FormatImage
	FormatASCII
	FormatUnicode
	FormatRichText
	FormatSound
	// FormatTable marks the fixed-width row tables under Data/.
	FormatTable
	FormatTextureDDS
)

func (f Format) String() string {
	switch f {
	case FormatImage:
		return "image"
	case FormatASCII:
		return "ascii"
	case FormatUnicode:
		return "unicode"
	case FormatRichText:
		return "rich text"
	case FormatSound:
		return "sound"
	case FormatTable:
		return "table"
	case FormatTextureDDS:
		return "dds texture"
	default:
		return "unknown"
	}
}

var formatsByExt = map[string]Format{
	".act":        FormatUnicode,
	".ais":        FormatUnicode,
	".amd":        FormatUnicode, // animated meta data
	".ao":         FormatUnicode, // animated object
	".aoc":        FormatUnicode, // animated object controller
	".arl":        FormatUnicode,
	".arm":        FormatUnicode, // rooms
	".atlas":      FormatUnicode,
	".cfg":        FormatASCII,
	".cht":        FormatUnicode,
	".clt":        FormatUnicode,
	".csv":        FormatASCII,
	".dat":        FormatTable,
	".dat64":      FormatTable,
	".dct":        FormatUnicode, // decals
	".dds":        FormatTextureDDS,
	".ddt":        FormatUnicode, // doodads
	".dgr":        FormatUnicode,
	".dlp":        FormatUnicode,
	".ecf":        FormatUnicode,
	".env":        FormatUnicode,
	".epk":        FormatUnicode,
	".et":         FormatUnicode,
	".ffx":        FormatUnicode,
	".fx":         FormatASCII, // shaders
	".gft":        FormatUnicode,
	".gt":         FormatUnicode, // ground types
	".idl":        FormatUnicode,
	".idt":        FormatUnicode,
	".jpg":        FormatImage,
	".mat":        FormatUnicode,
	".mel":        FormatASCII,
	".mtd":        FormatUnicode,
	".ogg":        FormatSound,
	".ot":         FormatUnicode,
	".otc":        FormatUnicode,
	".pet":        FormatUnicode,
	".png":        FormatImage,
	".properties": FormatASCII,
	".red":        FormatUnicode,
	".rs":         FormatUnicode, // room sets
	".rtf":        FormatRichText,
	".slt":        FormatASCII,
	".sm":         FormatUnicode, // skin mesh
	".tgr":        FormatUnicode,
	".tgt":        FormatUnicode,
	".tsi":        FormatUnicode,
	".tst":        FormatUnicode,
	".txt":        FormatUnicode,
	".ui":         FormatUnicode,
	".xml":        FormatUnicode,
}

// FormatOf classifies a file by its extension, case-insensitively.
// Unrecognized extensions are FormatUnknown.
func FormatOf(name string) Format {
	if name == "GameObjectRegister" {
		return FormatUnicode
	}
	return formatsByExt[strings.ToLower(path.Ext(name))]
}
