package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"whatsapp-web-bot/config"
	_ "whatsapp-web-bot/docs"
	"whatsapp-web-bot/internal/browser"
	"whatsapp-web-bot/internal/handlers"
	"whatsapp-web-bot/internal/repositories"
	"whatsapp-web-bot/internal/services"
	"whatsapp-web-bot/internal/utils"
	"whatsapp-web-bot/internal/wanotify"
)

// @title WhatsApp Web Bot API
// @version 1.0
// @description Multi-session WhatsApp Web automation: QR pairing, chat scraping and outbound message queue
// @host localhost:8080
// @BasePath /api/v1
func main() {
	cfg := config.NewConfig()

	db, err := config.ConnectDatabase(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	bus := wanotify.NewBus()

	sessionRepo := repositories.NewSQLiteSessionRepository(db)
	recorder := repositories.NewSessionRecorder(sessionRepo, bus)
	defer recorder.Close()

	var archiver services.AvatarArchiver
	if cfg.S3Config != nil {
		s3Service, err := services.NewS3Service(cfg.S3Config)
		if err != nil {
			utils.LogError("Erro ao criar serviço S3, avatares não serão arquivados: %v", err)
		} else {
			archiver = s3Service
		}
	}

	launcher := browser.NewRodLauncher(cfg.ChromeBin, cfg.Headless)
	supervisor := services.NewSessionSupervisor(launcher, bus, archiver, services.SupervisorOptions{
		WebURL:      cfg.WhatsAppWebURL,
		SessionDir:  cfg.SessionDir,
		NavTimeout:  cfg.NavTimeout,
		AuthTimeout: cfg.AuthTimeout,
	})

	driver := services.NewChatDriver(supervisor, bus, services.DriverOptions{})
	defer driver.Close()

	queue := services.NewMessageQueue(driver, bus, services.QueueOptions{})
	queue.Start()
	defer queue.Stop()

	wsManager := wanotify.NewWebSocketManager(bus)
	defer wsManager.Close()

	httpHandler := handlers.NewHTTPHandler(supervisor, driver, queue, sessionRepo, bus)
	sseHandler := handlers.NewSSEHandler(supervisor, driver, bus)
	wsHandler := handlers.NewWebSocketHandler(wsManager)

	router := mux.NewRouter().PathPrefix("/api/v1").Subrouter()

	// Rotas de sessão
	router.HandleFunc("/sessions", httpHandler.CreateSession).Methods("POST", "OPTIONS")
	router.HandleFunc("/sessions", httpHandler.GetSessions).Methods("GET")
	router.HandleFunc("/sessions", httpHandler.DestroySession).Methods("DELETE")
	router.HandleFunc("/sessions/qr", httpHandler.GetQRCode).Methods("GET")
	router.HandleFunc("/sessions/events", sseHandler.SessionEvents).Methods("GET")

	// Rotas de conversas e fila
	router.HandleFunc("/chats", httpHandler.GetChats).Methods("GET", "OPTIONS")
	router.HandleFunc("/chats/open", httpHandler.OpenChat).Methods("POST", "OPTIONS")
	router.HandleFunc("/chats/messages", httpHandler.GetMessages).Methods("GET")
	router.HandleFunc("/chats/messages", httpHandler.SendMessage).Methods("POST", "OPTIONS")
	router.HandleFunc("/chats/queue", httpHandler.QueueMessage).Methods("POST", "OPTIONS")
	router.HandleFunc("/chats/queue", httpHandler.GetQueueStatus).Methods("GET")
	router.HandleFunc("/chats/events", sseHandler.ChatEvents).Methods("GET")

	// Firehose de eventos via WebSocket
	router.HandleFunc("/ws", wsHandler.Handle)

	// Swagger UI servindo a spec registrada pelo pacote docs
	router.PathPrefix("/swagger-ui/").Handler(httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost%s/api/v1/swagger-ui/doc.json", cfg.ListenAddr)),
		httpSwagger.DeepLinking(true),
	))

	mainRouter := mux.NewRouter()
	mainRouter.PathPrefix("/api/v1").Handler(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	handler := c.Handler(mainRouter)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Printf("Server is running on http://localhost%s\n", cfg.ListenAddr)
		fmt.Printf("Swagger UI available at: http://localhost%s/api/v1/swagger-ui/\n", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-stop
	fmt.Println("\nShutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	// Fecha todas as sessões e os navegadores antes de sair
	supervisor.DestroyAll()

	fmt.Println("Server stopped successfully")
}
