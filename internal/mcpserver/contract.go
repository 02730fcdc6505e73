package mcpserver

// OutputFormatContract describes the link forms the converter emits, so that
// LLM consumers can read converted notes and the conversion report.
const OutputFormatContract = `# Logbridge Output Format

Converted notes are Markdown files for a vault that links by file name and
block anchor.

## Links

- Page links keep the double-bracket form: ` + "`" + `[[Page name]]` + "`" + `. Characters
  that are illegal in file names are replaced by ` + "`" + `_` + "`" + `.
- Block references become ` + "`" + `[[Document#^blockN]]` + "`" + `.
- Block embeds become ` + "`" + `![[Document#^blockN]]` + "`" + `; page embeds ` + "`" + `![[Page]]` + "`" + `.
- A referenced block carries its anchor at the end of the line: ` + "`" + `- text ^blockN` + "`" + `.
  Anchors are numbered across the whole vault and never repeat.

## Markers

Nothing the author wrote is dropped silently. When a target cannot be found
the converter leaves an HTML comment in place:

- ` + "`" + `<!-- unresolved reference: TOKEN -->` + "`" + `
- ` + "`" + `<!-- unresolved embed: TOKEN -->` + "`" + `
- ` + "`" + `<!-- missing file: NAME -->` + "`" + ` after an attachment link

Search for these markers to find what needs manual follow-up.

## Frontmatter

Page properties become YAML frontmatter. ` + "`" + `alias` + "`" + ` becomes ` + "`" + `aliases` + "`" + `,
` + "`" + `tags` + "`" + ` a list, ` + "`" + `created-at` + "`" + ` becomes ` + "`" + `created` + "`" + `.

## Attachments

Attachment links point at the configured attachments directory, e.g.
` + "`" + `![photo](assets/photo.png)` + "`" + `.
`
