package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"planet-chat/domain"
	"planet-chat/repositories"
)

// Read-only terminal viewer over the store: lists rooms, and with -room
// dumps that room's messages newest first. Opens the database with
// BypassLockGuard so it works while the server holds the lock.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	roomID := flag.String("room", "", "Room to dump messages for (empty lists rooms)")
	pages := flag.Int("pages", 1, "Number of message pages to fetch")
	pageSize := flag.Int("page-size", 20, "Messages per page")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := logs.GetLoggerFromLevel(slog.LevelError)

	if *roomID == "" {
		renderRooms(repositories.NewRoomRepository(db))
		return
	}
	renderMessages(repositories.NewMessageRepository(db, logger, *pageSize),
		domain.RoomID(*roomID), *pages)
}

func renderRooms(repo repositories.RoomRepository) {
	rooms, err := repo.ListRooms()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("=== Rooms ==="))

	table := newTable([]string{"ID", "Title", "Owner", "Occupants", "Last Entered", "Destroy At"})
	for _, room := range rooms {
		destroyAt := "-"
		if room.DestroyAt != nil {
			destroyAt = room.DestroyAt.Format(time.RFC822)
		}
		table.Append([]string{
			string(room.ID),
			room.Icon + " " + room.Title,
			room.OwnerID,
			strconv.Itoa(room.OccupantCount),
			room.LastEnteredAt.Format(time.RFC822),
			destroyAt,
		})
	}
	table.Render()
}

func renderMessages(repo repositories.MessageRepository, room domain.RoomID, pages int) {
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render("=== Messages in " + string(room) + " ==="))

	table := newTable([]string{"Time", "Sender", "Lvl", "Body", "ID"})

	var cursor *string
	for page := 0; page < pages; page++ {
		messages, next, err := repo.GetMessages(room, cursor)
		if err != nil {
			log.Fatal(err)
		}
		for _, msg := range messages {
			table.Append([]string{
				msg.SentAt.Format("15:04:05"),
				msg.SenderName,
				strconv.Itoa(msg.SenderLevel),
				msg.Body,
				shorten(msg.ID.String()),
			})
		}
		if next == nil {
			break
		}
		cursor = next
	}
	table.Render()
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func shorten(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
