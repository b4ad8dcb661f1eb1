package xmltv

import (
	"compress/gzip"
	"encoding/xml"
	"io"

	"epg/internal/app/epg"
)

const (
	GeneratorInfoName = "epg"

	lang = "ja"
)

// FromStore 将索引中的节目单转为XMLTV格式，结束时间早于since的节目不输出（since<=0时输出全部）
func FromStore(store *epg.Store, offset Offset, since int64) *XmlTV {
	infos := store.GetChannels()
	channels := make([]XmlChannel, 0, len(infos))
	programmes := make([]XmlProgramme, 0)
	for _, info := range infos {
		// 获取频道的相关信息
		channel := XmlChannel{
			Id:           info.ID,
			DisplayNames: []XmlText{{Lang: lang, Value: info.DisplayName}},
		}
		if info.Icon != "" {
			channel.Icons = []XmlIcon{{Src: info.Icon}}
		}
		channels = append(channels, channel)

		for _, program := range store.GetPrograms(info.ID) {
			if since > 0 && program.End <= since {
				continue
			}
			programmes = append(programmes, toXmlProgramme(&program, offset))
		}
	}

	return &XmlTV{
		GeneratorInfoName: GeneratorInfoName,
		Channels:          channels,
		Programmes:        programmes,
	}
}

func toXmlProgramme(program *epg.Program, offset Offset) XmlProgramme {
	xp := XmlProgramme{
		Start:   FormatTimestamp(program.Start, offset),
		Stop:    FormatTimestamp(program.End, offset),
		Channel: program.ChannelID,
		Titles:  []XmlText{{Lang: lang, Value: program.Title}},
	}
	if program.Description != "" {
		xp.Descs = []XmlText{{Lang: lang, Value: program.Description}}
	}
	for _, category := range program.Categories {
		xp.Categories = append(xp.Categories, XmlText{Lang: lang, Value: category})
	}
	if program.EpisodeNum != "" {
		xp.EpisodeNums = []XmlEpisodeNum{{System: "onscreen", Value: program.EpisodeNum}}
	}
	if program.Rating != "" {
		xp.Ratings = []XmlRating{{Value: program.Rating}}
	}
	if len(program.Credits) > 0 {
		xp.Credits = toXmlCredits(program.Credits)
	}
	return xp
}

func toXmlCredits(credits []epg.Credit) *XmlCredits {
	xc := &XmlCredits{}
	for _, credit := range credits {
		text := XmlText{Value: credit.Name}
		switch credit.Role {
		case "director":
			xc.Directors = append(xc.Directors, text)
		case "actor":
			xc.Actors = append(xc.Actors, XmlActor{Role: credit.Character, Value: credit.Name})
		case "writer":
			xc.Writers = append(xc.Writers, text)
		case "adapter":
			xc.Adapters = append(xc.Adapters, text)
		case "producer":
			xc.Producers = append(xc.Producers, text)
		case "composer":
			xc.Composers = append(xc.Composers, text)
		case "editor":
			xc.Editors = append(xc.Editors, text)
		case "presenter":
			xc.Presenters = append(xc.Presenters, text)
		case "commentator":
			xc.Commentators = append(xc.Commentators, text)
		case "guest":
			xc.Guests = append(xc.Guests, text)
		}
	}
	return xc
}

// Write 写入带xml头的格式化XMLTV内容
func Write(w io.Writer, tv *XmlTV) error {
	// 写入xml头
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(tv); err != nil {
		return err
	}
	return encoder.Close()
}

// WriteGzip 写入gzip压缩的XMLTV内容
func WriteGzip(w io.Writer, tv *XmlTV) error {
	gzipWriter := gzip.NewWriter(w)
	if err := Write(gzipWriter, tv); err != nil {
		_ = gzipWriter.Close()
		return err
	}
	return gzipWriter.Close()
}
