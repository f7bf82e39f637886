// Package invoice renders checkout invoices as PDF files and serves them back
// by reference.
//
// [PDFRenderer] implements goDeliver.InvoiceRenderer. Each invoice is written
// to its own file under the configured directory; the file's base name is the
// artifact reference returned to the buyer. [PDFRenderer.Open] only accepts
// plain base names, so a reference can never address a file outside that
// directory.
//
// The rendered document carries every OTP issued by the checkout verbatim.
// Invoice files must be treated as sensitive.
package invoice
