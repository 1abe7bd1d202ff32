// Package converter содержит реестр конвертеров и запуск внешних команд конвертации.
package converter

// defaultConverters - встроенная таблица конвертеров, ключ - PRONOM PUID.
// Записи из converters.yml заменяют встроенные по ключу.
var defaultConverters = map[string]Spec{
	// Microsoft Word 97-2003
	"fmt/40": {
		Command:   "unoconv -f pdf -o <target> <source>",
		Extension: "pdf",
	},
	// Microsoft Word OOXML (.docx)
	"fmt/412": {
		Command:   "unoconv -f pdf -o <target> <source>",
		Extension: "pdf",
	},
	// Rich Text Format
	"fmt/50": {
		Command:   "unoconv -f pdf -o <target> <source>",
		Extension: "pdf",
	},
	// Microsoft Excel 97-2003
	"fmt/61": {
		Command:   "unoconv -f pdf -o <target> <source>",
		Extension: "pdf",
		SourceExt: map[string]Override{
			// Таблицы, сохранённые как csv под расширением xls,
			// конвертируются как текст
			"csv": {Command: "cp <source> <target>", Extension: "csv"},
		},
	},
	// Microsoft Excel OOXML (.xlsx)
	"fmt/214": {
		Command:   "unoconv -f pdf -o <target> <source>",
		Extension: "pdf",
	},
	// PDF 1.4-1.7 -> PDF/A
	"fmt/18":  pdfToPdfA,
	"fmt/19":  pdfToPdfA,
	"fmt/20":  pdfToPdfA,
	"fmt/276": pdfToPdfA,
	// JPEG
	"fmt/42": {Command: "convert <source> <target>", Extension: "tif"},
	"fmt/43": {Command: "convert <source> <target>", Extension: "tif"},
	"fmt/44": {Command: "convert <source> <target>", Extension: "tif"},
	// PNG
	"fmt/11": {Command: "convert <source> <target>", Extension: "tif"},
	"fmt/12": {Command: "convert <source> <target>", Extension: "tif"},
	"fmt/13": {Command: "convert <source> <target>", Extension: "tif"},
	// GIF
	"fmt/3": {Command: "convert <source> <target>", Extension: "tif"},
	"fmt/4": {Command: "convert <source> <target>", Extension: "tif"},
	// TIFF - уже архивный формат, копируем
	"fmt/353": {Command: "cp <source> <target>"},
	// Обычный текст - копируем без изменений
	"x-fmt/111": {Command: "cp <source> <target>"},
	// XML
	"fmt/101": {Command: "cp <source> <target>"},
	"fmt/979": {Command: "cp <source> <target>", Extension: "xml"},
	// HTML
	"fmt/96": {
		Command:   "wkhtmltopdf <source> <target>",
		Extension: "pdf",
	},
	// OpenDocument Text
	"fmt/136": {
		Command:   "unoconv -f pdf -o <target> <source>",
		Extension: "pdf",
	},
	// Microsoft Outlook сообщение - ручная конвертация
	"x-fmt/430": {Command: ManualCommand},
}

// pdfToPdfA - нормализация PDF в PDF/A через ghostscript.
var pdfToPdfA = Spec{
	Command: "gs -dPDFA=2 -dBATCH -dNOPAUSE -sColorConversionStrategy=UseDeviceIndependentColor " +
		"-sDEVICE=pdfwrite -dPDFACompatibilityPolicy=1 -o <target> <source>",
	Extension: "pdf",
}

/*
Возможные расширения:
- Добавить конвертеры для почтовых форматов (mbox, eml)
- Добавить конвертеры для CAD-форматов
*/
