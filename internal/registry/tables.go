package registry

// Commonly abused extensions. Applications, script hosts, shortcuts, macro
// enabled office formats and legacy web/media formats with a history of
// exploitation.
var defaultMaliciousExtensions = []string{
	// Applications
	".exe", ".pif", ".application", ".gadget", ".msi", ".msp", ".com", ".scr",
	".hta", ".cpl", ".msc", ".jar",
	// Scripts
	".bat", ".cmd", ".vb", ".vbs", ".vbe", ".js", ".jse", ".ws", ".wsf",
	".wsc", ".wsh", ".ps1", ".ps1xml", ".ps2", ".ps2xml", ".psc1", ".psc2",
	".msh", ".msh1", ".msh2", ".mshxml", ".msh1xml", ".msh2xml",
	// Shortcuts
	".scf", ".lnk", ".inf",
	// Other
	".reg", ".dll",
	// OOXML with macros enabled
	".docm", ".dotm", ".xlsm", ".xltm", ".xlam", ".pptm", ".potm", ".ppam",
	".ppsm", ".sldm",
	// Web and media formats
	".asf", ".asx", ".au", ".htm", ".html", ".mht", ".wax", ".wm", ".wma",
	".wmd", ".wmv", ".wmx", ".wmz", ".wvx",
}

// Confusable spellings of the same type. Both DOS executable spellings map
// onto each other.
var defaultMimeAliases = map[string]string{
	"application/x-msdos-program": "application/x-dosexec",
	"application/x-dosexec":       "application/x-msdos-program",
	"application/rtf":             "text/rtf",
}

// Generic inference answers application/x-tar for foo.tar.gz.
var defaultExtensionOverrides = map[string]string{
	".gz": "application/gzip",
}

type typeEntry struct {
	ext  string
	mime string
}

// defaultTypes is the extension <-> MIME table consulted by GuessType,
// KnownExtension and ExtensionsFor. An extension may appear more than once;
// the first entry wins for GuessType, every entry counts for ExtensionsFor.
var defaultTypes = []typeEntry{
	{".js", "application/javascript"},
	{".mjs", "application/javascript"},
	{".json", "application/json"},
	{".webmanifest", "application/manifest+json"},
	{".doc", "application/msword"},
	{".dot", "application/msword"},
	{".wiz", "application/msword"},
	{".nq", "application/n-quads"},
	{".nt", "application/n-triples"},
	{".bin", "application/octet-stream"},
	{".a", "application/octet-stream"},
	{".dll", "application/octet-stream"},
	{".exe", "application/octet-stream"},
	{".o", "application/octet-stream"},
	{".obj", "application/octet-stream"},
	{".so", "application/octet-stream"},
	{".oda", "application/oda"},
	{".pdf", "application/pdf"},
	{".p7c", "application/pkcs7-mime"},
	{".ps", "application/postscript"},
	{".ai", "application/postscript"},
	{".eps", "application/postscript"},
	{".trig", "application/trig"},
	{".m3u", "application/vnd.apple.mpegurl"},
	{".m3u8", "application/vnd.apple.mpegurl"},
	{".xls", "application/vnd.ms-excel"},
	{".xlb", "application/vnd.ms-excel"},
	{".ppt", "application/vnd.ms-powerpoint"},
	{".pot", "application/vnd.ms-powerpoint"},
	{".ppa", "application/vnd.ms-powerpoint"},
	{".pps", "application/vnd.ms-powerpoint"},
	{".pwz", "application/vnd.ms-powerpoint"},
	{".msg", "application/vnd.ms-outlook"},
	{".odt", "application/vnd.oasis.opendocument.text"},
	{".ods", "application/vnd.oasis.opendocument.spreadsheet"},
	{".odp", "application/vnd.oasis.opendocument.presentation"},
	{".odg", "application/vnd.oasis.opendocument.graphics"},
	{".odf", "application/vnd.oasis.opendocument.formula"},
	{".docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	{".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	{".pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	{".epub", "application/epub+zip"},
	{".wasm", "application/wasm"},
	{".7z", "application/x-7z-compressed"},
	{".bcpio", "application/x-bcpio"},
	{".cpio", "application/x-cpio"},
	{".csh", "application/x-csh"},
	{".dvi", "application/x-dvi"},
	{".gtar", "application/x-gtar"},
	{".hdf", "application/x-hdf"},
	{".h5", "application/x-hdf5"},
	{".latex", "application/x-latex"},
	{".mif", "application/x-mif"},
	{".cdf", "application/x-netcdf"},
	{".nc", "application/x-netcdf"},
	{".p12", "application/x-pkcs12"},
	{".pfx", "application/x-pkcs12"},
	{".ram", "application/x-pn-realaudio"},
	{".pyc", "application/x-python-code"},
	{".pyo", "application/x-python-code"},
	{".rar", "application/x-rar-compressed"},
	{".sh", "application/x-sh"},
	{".shar", "application/x-shar"},
	{".swf", "application/x-shockwave-flash"},
	{".sv4cpio", "application/x-sv4cpio"},
	{".sv4crc", "application/x-sv4crc"},
	{".tar", "application/x-tar"},
	{".tcl", "application/x-tcl"},
	{".tex", "application/x-tex"},
	{".texi", "application/x-texinfo"},
	{".texinfo", "application/x-texinfo"},
	{".roff", "application/x-troff"},
	{".t", "application/x-troff"},
	{".tr", "application/x-troff"},
	{".man", "application/x-troff-man"},
	{".me", "application/x-troff-me"},
	{".ms", "application/x-troff-ms"},
	{".ustar", "application/x-ustar"},
	{".src", "application/x-wais-source"},
	{".xsl", "application/xml"},
	{".rdf", "application/xml"},
	{".wsdl", "application/xml"},
	{".xpdl", "application/xml"},
	{".zip", "application/zip"},
	{".gz", "application/gzip"},
	{".3gp", "audio/3gpp"},
	{".3gpp", "audio/3gpp"},
	{".3g2", "audio/3gpp2"},
	{".3gpp2", "audio/3gpp2"},
	{".aac", "audio/aac"},
	{".adts", "audio/aac"},
	{".loas", "audio/aac"},
	{".ass", "audio/aac"},
	{".au", "audio/basic"},
	{".snd", "audio/basic"},
	{".flac", "audio/flac"},
	{".mp3", "audio/mpeg"},
	{".mp2", "audio/mpeg"},
	{".ogg", "audio/ogg"},
	{".opus", "audio/opus"},
	{".aif", "audio/x-aiff"},
	{".aifc", "audio/x-aiff"},
	{".aiff", "audio/x-aiff"},
	{".ra", "audio/x-pn-realaudio"},
	{".wav", "audio/x-wav"},
	{".avif", "image/avif"},
	{".bmp", "image/bmp"},
	{".gif", "image/gif"},
	{".ief", "image/ief"},
	{".jpg", "image/jpeg"},
	{".jpe", "image/jpeg"},
	{".jpeg", "image/jpeg"},
	{".heic", "image/heic"},
	{".heif", "image/heif"},
	{".png", "image/png"},
	{".svg", "image/svg+xml"},
	{".tiff", "image/tiff"},
	{".tif", "image/tiff"},
	{".ico", "image/vnd.microsoft.icon"},
	{".webp", "image/webp"},
	{".ras", "image/x-cmu-raster"},
	{".pnm", "image/x-portable-anymap"},
	{".pbm", "image/x-portable-bitmap"},
	{".pgm", "image/x-portable-graymap"},
	{".ppm", "image/x-portable-pixmap"},
	{".rgb", "image/x-rgb"},
	{".xbm", "image/x-xbitmap"},
	{".xpm", "image/x-xpixmap"},
	{".xwd", "image/x-xwindowdump"},
	{".eml", "message/rfc822"},
	{".mht", "message/rfc822"},
	{".mhtml", "message/rfc822"},
	{".nws", "message/rfc822"},
	{".ics", "text/calendar"},
	{".css", "text/css"},
	{".csv", "text/csv"},
	{".html", "text/html"},
	{".htm", "text/html"},
	{".md", "text/markdown"},
	{".markdown", "text/markdown"},
	{".n3", "text/n3"},
	{".txt", "text/plain"},
	{".bat", "text/plain"},
	{".c", "text/plain"},
	{".h", "text/plain"},
	{".ksh", "text/plain"},
	{".pl", "text/plain"},
	{".srt", "text/plain"},
	{".rtx", "text/richtext"},
	{".tsv", "text/tab-separated-values"},
	{".vtt", "text/vtt"},
	{".py", "text/x-python"},
	{".etx", "text/x-setext"},
	{".sgm", "text/x-sgml"},
	{".sgml", "text/x-sgml"},
	{".vcf", "text/x-vcard"},
	{".xml", "text/xml"},
	{".mp4", "video/mp4"},
	{".mpeg", "video/mpeg"},
	{".m1v", "video/mpeg"},
	{".mpa", "video/mpeg"},
	{".mpe", "video/mpeg"},
	{".mpg", "video/mpeg"},
	{".mov", "video/quicktime"},
	{".qt", "video/quicktime"},
	{".webm", "video/webm"},
	{".mkv", "video/x-matroska"},
	{".avi", "video/x-msvideo"},
	{".movie", "video/x-sgi-movie"},
}

// Non-standard but widely used. They take part in inference after
// defaultTypes but do not make an extension known.
var nonStrictTypes = []typeEntry{
	{".rtf", "application/rtf"},
	{".midi", "audio/midi"},
	{".mid", "audio/midi"},
	{".jpg", "image/jpg"},
	{".pict", "image/pict"},
	{".pct", "image/pict"},
	{".pic", "image/pict"},
	{".xul", "text/xul"},
}

// Suffixes that generic inference rewrites before looking at the type.
var suffixAliases = map[string]string{
	".svgz": ".svg.gz",
	".tgz":  ".tar.gz",
	".taz":  ".tar.gz",
	".tz":   ".tar.gz",
	".tbz2": ".tar.bz2",
	".txz":  ".tar.xz",
}

// Compression suffixes, case sensitive.
var encodingSuffixes = map[string]string{
	".gz":  "gzip",
	".Z":   "compress",
	".bz2": "bzip2",
	".xz":  "xz",
	".br":  "br",
}

// Main type handler names. Anything else goes to Unknown.
const (
	HandlerText        = "text"
	HandlerAudio       = "audio"
	HandlerImage       = "image"
	HandlerVideo       = "video"
	HandlerApplication = "application"
	HandlerExample     = "example"
	HandlerMessage     = "message"
	HandlerModel       = "model"
	HandlerMultipart   = "multipart"
	HandlerInode       = "inode"
	HandlerUnknown     = "unknown"
)

var defaultMainTypes = []string{
	HandlerText,
	HandlerAudio,
	HandlerImage,
	HandlerVideo,
	HandlerApplication,
	HandlerExample,
	HandlerMessage,
	HandlerModel,
	HandlerMultipart,
	HandlerInode,
}

// Application sub-type groups, in dispatch priority order.
const (
	GroupOffice      = "office"
	GroupOOXML       = "ooxml"
	GroupRTF         = "rtf"
	GroupLibreOffice = "libreoffice"
	GroupPDF         = "pdf"
	GroupXML         = "xml"
	GroupExecutable  = "executable"
	GroupCompressed  = "compressed"
	GroupData        = "data"
)

var defaultApplicationGroups = []SubtypeGroup{
	{Name: GroupOffice, Substrings: []string{"msword", "vnd.ms-", "x-ole-storage"}},
	{Name: GroupOOXML, Substrings: []string{"vnd.openxmlformats-officedocument."}},
	{Name: GroupRTF, Substrings: []string{"rtf", "richtext"}},
	{Name: GroupLibreOffice, Substrings: []string{"vnd.oasis.opendocument"}},
	{Name: GroupPDF, Substrings: []string{"pdf", "postscript"}},
	{Name: GroupXML, Substrings: []string{"xml"}},
	{Name: GroupExecutable, Substrings: []string{"dosexec", "msdos-program", "portable-executable", "msdownload"}},
	{Name: GroupCompressed, Substrings: []string{
		"zip", "rar", "bzip2", "lzip", "lzma", "lzop", "xz", "compress", "gzip", "tar",
	}},
	{Name: GroupData, Substrings: []string{"octet-stream"}},
}
